// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/models"
)

// Page is a scripted browser.Page. Element presence is keyed by
// Target.String(), so a text match is registered as "button~save".
type Page struct {
	mu sync.Mutex

	CurrentURL string
	Documents  map[string]string // url -> html served after navigating there
	Redirects  map[string]string // url -> url the navigation lands on
	Elements   map[string]bool
	Values     map[string]string

	NavigateErr   error
	WaitErr       error
	NavWaitErr    error
	Unsubmittable bool // SubmitForm finds nothing to submit

	// PostFunc answers PostForm. Nil means HTTP 200.
	PostFunc func(action string, form url.Values) (browser.FetchResult, error)
	// AfterClick runs after a successful click, under no lock
	AfterClick func(p *Page, target browser.Target)

	Calls   []string
	Posts   []url.Values
	cookies []models.SessionCookie
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page at about:blank
func New() *Page {
	return &Page{
		CurrentURL: "about:blank",
		Documents:  make(map[string]string),
		Redirects:  make(map[string]string),
		Elements:   make(map[string]bool),
		Values:     make(map[string]string),
	}
}

// Add marks selectors as present
func (p *Page) Add(keys ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		p.Elements[k] = true
	}
	return p
}

// Remove marks selectors as absent
func (p *Page) Remove(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.Elements, k)
	}
}

// CallsWithPrefix returns the recorded calls starting with prefix
func (p *Page) CallsWithPrefix(prefix string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) record(format string, args ...interface{}) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

func (p *Page) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", rawURL)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if target, ok := p.Redirects[rawURL]; ok {
		p.CurrentURL = target
	} else {
		p.CurrentURL = rawURL
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Documents[p.CurrentURL], nil
}

func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait %s", selector)
	if p.WaitErr != nil {
		return p.WaitErr
	}
	if !p.Elements[selector] {
		return fmt.Errorf("%w: wait for %s", models.ErrTransientNetwork, selector)
	}
	return nil
}

func (p *Page) Find(ctx context.Context, chain browser.Chain) (browser.Target, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.first(chain)
	return t, ok, nil
}

func (p *Page) Type(ctx context.Context, target browser.Target, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Elements[target.String()] {
		return fmt.Errorf("%w: %s", models.ErrElementNotFound, target)
	}
	p.record("type %s", target)
	p.Values[target.String()] = text
	return nil
}

func (p *Page) Click(ctx context.Context, target browser.Target) error {
	p.mu.Lock()
	if !p.Elements[target.String()] {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrElementNotFound, target)
	}
	p.record("click %s", target)
	hook := p.AfterClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, target)
	}
	return nil
}

func (p *Page) SetValue(ctx context.Context, chain browser.Chain, value string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.first(chain)
	if !ok {
		return false, nil
	}
	p.record("set %s=%s", t, value)
	p.Values[t.String()] = value
	return true, nil
}

func (p *Page) Value(ctx context.Context, chain browser.Chain) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.first(chain)
	if !ok {
		return "", false, nil
	}
	return p.Values[t.String()], true, nil
}

func (p *Page) SubmitForm(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unsubmittable || !p.Elements[selector] {
		return false, nil
	}
	p.record("submit %s", selector)
	return true, nil
}

func (p *Page) ExpectNavigation(ctx context.Context, timeout time.Duration) func() error {
	return func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.NavWaitErr
	}
}

func (p *Page) PostForm(ctx context.Context, action string, form url.Values) (browser.FetchResult, error) {
	p.mu.Lock()
	p.record("post %s", action)
	p.Posts = append(p.Posts, form)
	fn := p.PostFunc
	p.mu.Unlock()

	if fn == nil {
		return browser.FetchResult{Status: 200, OK: true, URL: action}, nil
	}
	return fn(action, form)
}

func (p *Page) Cookies(ctx context.Context) ([]models.SessionCookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SessionCookie(nil), p.cookies...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []models.SessionCookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set-cookies %d", len(cookies))
	p.cookies = append([]models.SessionCookie(nil), cookies...)
	return nil
}

func (p *Page) first(chain browser.Chain) (browser.Target, bool) {
	for _, t := range chain {
		if p.Elements[t.String()] {
			return t, true
		}
	}
	return browser.Target{}, false
}
