// Package session keeps the site session alive: it logs in through the
// identity provider and persists the resulting cookies between runs.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/logutil"
	"dev/bravebird/weightsync-go/pkg/models"
)

// Authenticator drives the login flow
type Authenticator struct {
	page        browser.Page
	store       *CookieStore
	credentials models.Credentials
	loginURL    string

	NavigationTimeout time.Duration
	FormTimeout       time.Duration
}

// NewAuthenticator creates an authenticator for page
func NewAuthenticator(page browser.Page, store *CookieStore, creds models.Credentials, loginURL string) *Authenticator {
	return &Authenticator{
		page:              page,
		store:             store,
		credentials:       creds,
		loginURL:          loginURL,
		NavigationTimeout: 20 * time.Second,
		FormTimeout:       10 * time.Second,
	}
}

// Authenticate logs in and saves the harvested cookies. It returns true when
// the form was filled and submitted. It does not check that the login was
// accepted; the next update finds that out.
func (a *Authenticator) Authenticate(ctx context.Context) bool {
	done := logutil.Timed(slog.Default(), "Authentication")
	defer done()

	if err := a.login(ctx); err != nil {
		slog.Error("Authentication error", "error", err)
		return false
	}

	slog.Info("Authentication successful")
	return true
}

func (a *Authenticator) login(ctx context.Context) error {
	if err := a.page.Navigate(ctx, a.loginURL, a.NavigationTimeout); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	// The form is rendered asynchronously, absence here is re-checked below
	if err := a.page.WaitFor(ctx, loginFormSelector, a.FormTimeout); err != nil {
		slog.Info("Email field not found, will try to find any input field", "error", err)
	}

	email, ok, err := a.page.Find(ctx, EmailChain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: email/username input", models.ErrMissingField)
	}
	if err := a.page.Type(ctx, email, a.credentials.Username); err != nil {
		return err
	}

	password, ok, err := a.page.Find(ctx, PasswordChain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: password input", models.ErrMissingField)
	}
	if err := a.page.Type(ctx, password, a.credentials.Password); err != nil {
		return err
	}

	button, ok, err := a.page.Find(ctx, LoginButtonChain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: login button", models.ErrElementNotFound)
	}

	wait := a.page.ExpectNavigation(ctx, a.NavigationTimeout)
	if err := a.page.Click(ctx, button); err != nil {
		return err
	}
	// Some successful logins never trigger a full navigation
	if err := wait(); err != nil {
		slog.Info("Navigation after login click timed out or failed", "error", err)
	}

	cookies, err := a.page.Cookies(ctx)
	if err != nil {
		slog.Warn("Failed to harvest cookies", "error", err)
		return nil
	}
	// Save logs its own failures and a lost session file is not fatal
	_ = a.store.Save(cookies)
	return nil
}
