package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"dev/bravebird/weightsync-go/pkg/models"
)

// Target is one candidate in a selector fallback chain. When Text is set the
// candidate only matches elements whose text contains it, case-insensitively.
type Target struct {
	Selector string
	Text     string
}

func (t Target) String() string {
	if t.Text == "" {
		return t.Selector
	}
	return t.Selector + "~" + strings.ToLower(t.Text)
}

// Chain is a prioritized list of targets. The first one present wins.
type Chain []Target

// Selectors builds a chain of plain CSS selectors
func Selectors(selectors ...string) Chain {
	chain := make(Chain, 0, len(selectors))
	for _, s := range selectors {
		chain = append(chain, Target{Selector: s})
	}
	return chain
}

// FetchResult describes the response to a request issued from page context
type FetchResult struct {
	Status     int    `json:"status"`
	OK         bool   `json:"ok"`
	Redirected bool   `json:"redirected"`
	URL        string `json:"url"`
}

// Page is the set of page operations the session and update layers need.
// RodPage implements it over a live browser tab.
type Page interface {
	// Navigate loads url and waits for the network to go almost idle
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// URL returns the address of the current document
	URL(ctx context.Context) (string, error)
	// HTML returns the serialized current document
	HTML(ctx context.Context) (string, error)
	// WaitFor blocks until selector is present or timeout elapses
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Find returns the first target of chain present on the page
	Find(ctx context.Context, chain Chain) (Target, bool, error)
	Type(ctx context.Context, target Target, text string) error
	Click(ctx context.Context, target Target) error
	// SetValue assigns value to the first input of chain and fires input
	// and change events. It reports false when no input matched.
	SetValue(ctx context.Context, chain Chain, value string) (bool, error)
	// Value reads the value of the first input of chain
	Value(ctx context.Context, chain Chain) (string, bool, error)
	// SubmitForm submits the form matched by selector directly
	SubmitForm(ctx context.Context, selector string) (bool, error)
	// ExpectNavigation starts listening for the next navigation. The
	// returned func blocks until it settles or timeout elapses.
	ExpectNavigation(ctx context.Context, timeout time.Duration) func() error
	// PostForm sends a credentialed form-encoded POST from page context so
	// the session cookies apply.
	PostForm(ctx context.Context, action string, form url.Values) (FetchResult, error)
	Cookies(ctx context.Context) ([]models.SessionCookie, error)
	SetCookies(ctx context.Context, cookies []models.SessionCookie) error
}
