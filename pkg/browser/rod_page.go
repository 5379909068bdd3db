package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"dev/bravebird/weightsync-go/pkg/models"
)

// RodPage implements Page over a rod tab
type RodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

var _ Page = (*RodPage)(nil)

const postFormJS = `async (action, body) => {
	const res = await fetch(action, {
		method: 'POST',
		credentials: 'include',
		headers: { 'Content-Type': 'application/x-www-form-urlencoded' },
		body: body,
	});
	return JSON.stringify({ status: res.status, ok: res.ok, redirected: res.redirected, url: res.url });
}`

const setValueJS = `function (v) {
	this.value = v;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

const submitFormJS = `function () {
	if (typeof this.requestSubmit === 'function') {
		this.requestSubmit();
	} else {
		this.submit();
	}
}`

func (p *RodPage) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	defer pg.CancelTimeout()

	wait := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := pg.Navigate(rawURL); err != nil {
		return fmt.Errorf("%w: navigate to %s: %w", models.ErrTransientNetwork, rawURL, err)
	}
	wait()

	// The wait returns quietly when the page context expires
	if err := pg.GetContext().Err(); err != nil {
		return fmt.Errorf("%w: navigate to %s: %w", models.ErrTransientNetwork, rawURL, err)
	}
	return nil
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

func (p *RodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

func (p *RodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	defer pg.CancelTimeout()

	if _, err := pg.Element(selector); err != nil {
		return fmt.Errorf("%w: wait for %s: %w", models.ErrTransientNetwork, selector, err)
	}
	return nil
}

func (p *RodPage) Find(ctx context.Context, chain Chain) (Target, bool, error) {
	for _, t := range chain {
		el, err := p.lookup(ctx, t)
		if err != nil {
			return Target{}, false, err
		}
		if el != nil {
			return t, true, nil
		}
	}
	return Target{}, false, nil
}

func (p *RodPage) Type(ctx context.Context, target Target, text string) error {
	el, err := p.require(ctx, target)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text in %s: %w", target, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", target, err)
	}
	return nil
}

func (p *RodPage) Click(ctx context.Context, target Target) error {
	el, err := p.require(ctx, target)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", target, err)
	}
	return nil
}

func (p *RodPage) SetValue(ctx context.Context, chain Chain, value string) (bool, error) {
	el, _, err := p.first(ctx, chain)
	if err != nil || el == nil {
		return false, err
	}
	if _, err := el.Eval(setValueJS, value); err != nil {
		return false, fmt.Errorf("failed to set value: %w", err)
	}
	return true, nil
}

func (p *RodPage) Value(ctx context.Context, chain Chain) (string, bool, error) {
	el, _, err := p.first(ctx, chain)
	if err != nil || el == nil {
		return "", false, err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", false, fmt.Errorf("failed to read value: %w", err)
	}
	return v.Str(), true, nil
}

func (p *RodPage) SubmitForm(ctx context.Context, selector string) (bool, error) {
	el, err := p.lookup(ctx, Target{Selector: selector})
	if err != nil || el == nil {
		return false, err
	}
	if _, err := el.Eval(submitFormJS); err != nil {
		return false, fmt.Errorf("failed to submit %s: %w", selector, err)
	}
	return true, nil
}

func (p *RodPage) ExpectNavigation(ctx context.Context, timeout time.Duration) func() error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	wait := p.page.Context(waitCtx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)

	return func() error {
		defer cancel()
		wait()
		if err := waitCtx.Err(); err != nil {
			return fmt.Errorf("%w: navigation wait: %w", models.ErrTransientNetwork, err)
		}
		return nil
	}
}

func (p *RodPage) PostForm(ctx context.Context, action string, form url.Values) (FetchResult, error) {
	res, err := p.page.Context(ctx).Eval(postFormJS, action, form.Encode())
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: post %s: %w", models.ErrTransientNetwork, action, err)
	}

	var out FetchResult
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return FetchResult{}, fmt.Errorf("failed to decode fetch result: %w", err)
	}
	return out, nil
}

// Cookies returns every cookie the browser holds, not only those of the
// current document, so identity provider cookies are kept too.
func (p *RodPage) Cookies(ctx context.Context) ([]models.SessionCookie, error) {
	cookies, err := p.page.Browser().Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}
	return FromNetworkCookies(cookies), nil
}

func (p *RodPage) SetCookies(ctx context.Context, cookies []models.SessionCookie) error {
	if err := p.page.Browser().Context(ctx).SetCookies(ToCookieParams(cookies)); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// Close stops request interception and closes the tab
func (p *RodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}

// lookup resolves one target without waiting. A nil element means absent.
func (p *RodPage) lookup(ctx context.Context, t Target) (*rod.Element, error) {
	pg := p.page.Context(ctx)

	var (
		has bool
		el  *rod.Element
		err error
	)
	if t.Text == "" {
		has, el, err = pg.Has(t.Selector)
	} else {
		has, el, err = pg.HasR(t.Selector, "/"+regexp.QuoteMeta(t.Text)+"/i")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t, err)
	}
	if !has {
		return nil, nil
	}
	return el, nil
}

func (p *RodPage) first(ctx context.Context, chain Chain) (*rod.Element, Target, error) {
	for _, t := range chain {
		el, err := p.lookup(ctx, t)
		if err != nil {
			return nil, Target{}, err
		}
		if el != nil {
			return el, t, nil
		}
	}
	return nil, Target{}, nil
}

func (p *RodPage) require(ctx context.Context, t Target) (*rod.Element, error) {
	el, err := p.lookup(ctx, t)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrElementNotFound, t)
	}
	return el, nil
}
