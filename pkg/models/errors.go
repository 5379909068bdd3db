package models

import "errors"

// Error taxonomy shared by the browser, session and update layers. Callers
// match with errors.Is; the wrapping error carries the detail.
var (
	// ErrTransientNetwork is a navigation, wait or fetch that failed or timed out
	ErrTransientNetwork = errors.New("transient network error")

	// ErrAuthenticationRequired means the site redirected to the identity provider
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrStaleToken is a direct submission rejected with HTTP 403
	ErrStaleToken = errors.New("stale anti-forgery token")

	// ErrElementNotFound is a missing form, input or save control
	ErrElementNotFound = errors.New("element not found")

	// ErrMissingField is a login form without a usable email or password input
	ErrMissingField = errors.New("missing login field")

	// ErrNotVerified means the weight input did not show the saved value
	ErrNotVerified = errors.New("update not verified")

	// ErrPersistence is a failure reading or writing the session file
	ErrPersistence = errors.New("session persistence error")
)
