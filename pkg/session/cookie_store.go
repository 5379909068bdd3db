package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/models"
)

// CookieStore persists the session cookies as a JSON array in one file.
// The stored session is advisory: the site decides whether it is valid.
type CookieStore struct {
	path string
}

// NewCookieStore returns a store backed by path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Path returns the backing file
func (s *CookieStore) Path() string {
	return s.path
}

// Load reads the saved cookies. A missing or corrupt file is a cache miss,
// reported as ok=false; corruption is logged.
func (s *CookieStore) Load() ([]models.SessionCookie, bool) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Error loading cookies", "path", s.path, "error", fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return nil, false
	}

	var cookies []models.SessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		slog.Warn("Error loading cookies", "path", s.path, "error", fmt.Errorf("%w: %v", models.ErrPersistence, err))
		return nil, false
	}

	slog.Info("Cookies loaded successfully", "count", len(cookies))
	return cookies, true
}

// Save overwrites the file with cookies. Callers treat an error as
// non-fatal; it is logged here as well.
func (s *CookieStore) Save(cookies []models.SessionCookie) error {
	if cookies == nil {
		cookies = []models.SessionCookie{}
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("%w: encode cookies: %v", models.ErrPersistence, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			slog.Error("Error saving cookies", "path", s.path, "error", err)
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		slog.Error("Error saving cookies", "path", s.path, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	slog.Info("Cookies saved successfully", "count", len(cookies))
	return nil
}

// Restore loads the saved session into the browser. It reports whether any
// cookies were applied; failures degrade to an unauthenticated page.
func Restore(ctx context.Context, page browser.Page, store *CookieStore) bool {
	cookies, ok := store.Load()
	if !ok || len(cookies) == 0 {
		return false
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		slog.Warn("Failed to restore cookies", "error", err)
		return false
	}
	return true
}
