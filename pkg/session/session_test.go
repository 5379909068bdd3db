package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/weightsync-go/pkg/browser/browsertest"
	"dev/bravebird/weightsync-go/pkg/models"
)

const loginURL = "https://auth.polar.com/login"

func TestCookieStoreLoad(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		wantOK  bool
		wantLen int
	}{
		{name: "missing file", content: nil, wantOK: false},
		{name: "invalid json", content: strPtr("{not json"), wantOK: false},
		{name: "wrong shape", content: strPtr(`{"name":"a"}`), wantOK: false},
		{name: "empty array", content: strPtr(`[]`), wantOK: true, wantLen: 0},
		{
			name:    "puppeteer cookies",
			content: strPtr(`[{"name":"SESSION","value":"v","domain":"flow.polar.com","path":"/","expires":-1,"size":12,"httpOnly":true,"secure":true,"session":true}]`),
			wantOK:  true,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cookies.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o600))
			}

			cookies, ok := NewCookieStore(path).Load()
			assert.Equal(t, tt.wantOK, ok)
			assert.Len(t, cookies, tt.wantLen)
		})
	}
}

func TestCookieStoreSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	store := NewCookieStore(path)

	in := []models.SessionCookie{{Name: "SESSION", Value: "abc", Domain: "flow.polar.com", Path: "/", Expires: 1767225600, Secure: true}}
	require.NoError(t, store.Save(in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestCookieStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory in the file's place makes the write fail
	path := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.Mkdir(path, 0o700))

	err := NewCookieStore(path).Save(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistence))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt file leaves the page untouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		require.NoError(t, os.WriteFile(path, []byte("]["), 0o600))
		page := browsertest.New()

		assert.False(t, Restore(ctx, page, NewCookieStore(path)))
		assert.Empty(t, page.CallsWithPrefix("set-cookies"))
	})

	t.Run("saved cookies are applied", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		store := NewCookieStore(path)
		require.NoError(t, store.Save([]models.SessionCookie{{Name: "a", Value: "b"}}))
		page := browsertest.New()

		assert.True(t, Restore(ctx, page, store))
		assert.Equal(t, []string{"set-cookies 1"}, page.CallsWithPrefix("set-cookies"))
	})
}

func loginPage() *browsertest.Page {
	return browsertest.New().Add(
		`input[name="email"], input[type="email"]`,
		`input[name="email"]`,
		`input[name="password"]`,
		`button[type="submit"]`,
	)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	creds := models.Credentials{Username: "runner@example.com", Password: "hunter2"}

	t.Run("fills the form and saves cookies", func(t *testing.T) {
		page := loginPage()
		require.NoError(t, page.SetCookies(ctx, []models.SessionCookie{{Name: "SESSION", Value: "fresh", Domain: "flow.polar.com"}}))
		path := filepath.Join(t.TempDir(), "cookies.json")
		store := NewCookieStore(path)

		ok := NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx)
		require.True(t, ok)

		assert.Equal(t, creds.Username, page.Values[`input[name="email"]`])
		assert.Equal(t, creds.Password, page.Values[`input[name="password"]`])
		assert.Equal(t, []string{`click button[type="submit"]`}, page.CallsWithPrefix("click"))

		saved, loaded := store.Load()
		require.True(t, loaded)
		assert.Equal(t, "fresh", saved[0].Value)
	})

	t.Run("falls back to the generic input chain", func(t *testing.T) {
		page := browsertest.New().Add(
			`input:not([type="password"]):not([type="checkbox"])`,
			`input[type="password"]`,
			"button~login",
		)
		store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

		ok := NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx)
		require.True(t, ok)
		assert.Equal(t, []string{"click button~login"}, page.CallsWithPrefix("click"))
	})

	t.Run("navigation timeout after click is tolerated", func(t *testing.T) {
		page := loginPage()
		page.NavWaitErr = models.ErrTransientNetwork
		store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

		assert.True(t, NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx))
	})

	t.Run("missing password field fails", func(t *testing.T) {
		page := loginPage()
		page.Remove(`input[name="password"]`)
		store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

		assert.False(t, NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx))
		assert.Empty(t, page.CallsWithPrefix("click"))
	})

	t.Run("missing email field fails", func(t *testing.T) {
		page := browsertest.New().Add(`button[type="submit"]`)
		store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

		assert.False(t, NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx))
	})

	t.Run("login page unreachable", func(t *testing.T) {
		page := loginPage()
		page.NavigateErr = models.ErrTransientNetwork
		store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

		assert.False(t, NewAuthenticator(page, store, creds, loginURL).Authenticate(ctx))
	})
}

func strPtr(s string) *string { return &s }
