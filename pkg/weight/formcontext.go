package weight

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/models"
)

type cacheState int

const (
	cacheEmpty cacheState = iota
	cacheReady
	cacheUnavailable
)

var tokenPattern = regexp.MustCompile(`(?i)name="csrfToken"\s+value="([^"]+)"`)

// FormContextCache holds the daily form's submission context for the
// lifetime of a session. It is filled by one page visit and reused for every
// date until Invalidate.
type FormContextCache struct {
	BaseURL  string
	AuthHost string
	Timeout  time.Duration

	state   cacheState
	current models.FormContext
}

// NewFormContextCache returns an empty cache for the site at baseURL
func NewFormContextCache(baseURL, authHost string, timeout time.Duration) *FormContextCache {
	return &FormContextCache{BaseURL: baseURL, AuthHost: authHost, Timeout: timeout}
}

// Current returns the cached context, if any
func (c *FormContextCache) Current() (models.FormContext, bool) {
	return c.current, c.state == cacheReady
}

// Invalidate drops the cached context. The next Ensure visits the page again.
func (c *FormContextCache) Invalidate() {
	c.state = cacheEmpty
	c.current = models.FormContext{}
}

// Ensure returns the cached context, visiting the day page for date only
// when the cache is empty. The context does not depend on date.
//
// A nil context with a nil error means the form is not usable for direct
// submission in this run. ErrAuthenticationRequired is returned when the
// visit lands on the identity provider.
func (c *FormContextCache) Ensure(ctx context.Context, page browser.Page, date models.CalendarDate) (*models.FormContext, error) {
	switch c.state {
	case cacheReady:
		fc := c.current
		return &fc, nil
	case cacheUnavailable:
		return nil, nil
	}

	dayURL := DayURL(c.BaseURL, date)
	slog.Info("No form data found, fetching from day page", "url", dayURL)
	if err := page.Navigate(ctx, dayURL, c.Timeout); err != nil {
		return nil, err
	}

	current, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}
	if isAuthURL(current, c.AuthHost) {
		return nil, fmt.Errorf("%w: redirected to %s", models.ErrAuthenticationRequired, current)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}

	fc, ok, err := extractFormContext(html, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Info("Could not extract form data, falling back to page navigation method")
		c.state = cacheUnavailable
		return nil, nil
	}

	c.state = cacheReady
	c.current = fc
	slog.Info("Form data extracted successfully", "action", fc.SubmitURL)
	return &fc, nil
}

// extractFormContext reads the daily form out of a document served at
// pageURL. It reports false when the form or its token is missing.
func extractFormContext(html, pageURL string) (models.FormContext, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.FormContext{}, false, fmt.Errorf("failed to parse day page: %w", err)
	}

	form := doc.Find(DailyFormSelector).First()
	if form.Length() == 0 {
		return models.FormContext{}, false, nil
	}

	action, err := resolveAction(pageURL, form.AttrOr("action", ""))
	if err != nil {
		return models.FormContext{}, false, err
	}

	token := inputValue(form, fieldToken)
	if token == "" {
		token = doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")
	}
	if token == "" {
		token = inputValue(doc.Selection, "_csrf")
	}
	if token == "" {
		if m := tokenPattern.FindStringSubmatch(html); m != nil {
			token = m[1]
		}
	}
	if token == "" {
		return models.FormContext{}, false, nil
	}

	return models.FormContext{
		SubmitURL:        action,
		AntiForgeryToken: token,
		UserID:           inputValue(form, fieldUserID),
	}, true, nil
}

func inputValue(s *goquery.Selection, name string) string {
	return strings.TrimSpace(s.Find(fmt.Sprintf(`input[name="%s"]`, name)).First().AttrOr("value", ""))
}

// resolveAction resolves the form action the way a browser does. An empty
// action posts back to the page itself.
func resolveAction(pageURL, action string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return "", fmt.Errorf("invalid form action %q: %w", action, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// DayURL is the daily data page of date
func DayURL(baseURL string, date models.CalendarDate) string {
	return strings.TrimRight(baseURL, "/") + "/training/day/" + date.DayMonthYear()
}

func isAuthURL(rawURL, authHost string) bool {
	return authHost != "" && strings.Contains(rawURL, authHost)
}
