// Package weight uploads a daily weight to the site. It tries a direct form
// submission from page context first and falls back to driving the day page.
package weight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/logutil"
	"dev/bravebird/weightsync-go/pkg/models"
)

// Config tunes the updater. The zero value is not usable, start from
// DefaultConfig.
type Config struct {
	BaseURL       string
	AuthHost      string
	DisableDirect bool

	NavigationTimeout       time.Duration // day page load on the DOM path
	FormVisitTimeout        time.Duration // day page load to fill the form context
	ElementTimeout          time.Duration
	SubmitNavigationTimeout time.Duration
	SettleDelay             time.Duration
}

// DefaultConfig returns the production timeouts for the site at baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:                 baseURL,
		AuthHost:                "auth.polar.com",
		NavigationTimeout:       20 * time.Second,
		FormVisitTimeout:        15 * time.Second,
		ElementTimeout:          10 * time.Second,
		SubmitNavigationTimeout: 15 * time.Second,
		SettleDelay:             time.Second,
	}
}

// Updater uploads weights through one page. It owns the page's form context
// cache; it is not safe for concurrent use.
type Updater struct {
	page  browser.Page
	forms *FormContextCache
	cfg   Config
}

// NewUpdater creates an updater with an empty form context cache
func NewUpdater(page browser.Page, cfg Config) *Updater {
	return &Updater{
		page:  page,
		forms: NewFormContextCache(cfg.BaseURL, cfg.AuthHost, cfg.FormVisitTimeout),
		cfg:   cfg,
	}
}

// Forms exposes the form context cache
func (u *Updater) Forms() *FormContextCache {
	return u.forms
}

// UpdateOn is Update for an ISO "YYYY-MM-DD" date string
func (u *Updater) UpdateOn(ctx context.Context, raw float64, isoDate string) (models.Outcome, error) {
	date, err := models.ParseCalendarDate(isoDate)
	if err != nil {
		return models.OutcomeFailure, err
	}
	return u.Update(ctx, raw, date)
}

// Update stores raw, rounded to one decimal, as the weight of date. The
// outcome is Success, AuthRequired or Failure; the error carries the reason
// for anything but Success. AuthRequired asks the caller to authenticate and
// call again.
func (u *Updater) Update(ctx context.Context, raw float64, date models.CalendarDate) (models.Outcome, error) {
	weight := models.RoundWeight(raw)

	if !u.cfg.DisableDirect {
		outcome, err := u.tryDirect(ctx, weight, date)
		switch outcome {
		case models.OutcomeSuccess, models.OutcomeAuthRequired:
			return outcome, err
		}
		if err != nil {
			slog.Info("Falling back to page navigation method", "date", date, "reason", err)
		} else {
			slog.Info("Falling back to page navigation method", "date", date)
		}
	}

	return u.tryDom(ctx, weight, date)
}

// tryDirect posts the daily form without loading the day page, using the
// cached form context. Any outcome but Success and AuthRequired is Fallback.
func (u *Updater) tryDirect(ctx context.Context, weight float64, date models.CalendarDate) (models.Outcome, error) {
	done := logutil.Timed(slog.Default(), "Direct Weight Update")
	defer done()

	slog.Info("Attempting direct weight update", "weight", models.FormatWeight(weight), "date", date.DayMonthYear())

	form, err := u.forms.Ensure(ctx, u.page, date)
	switch {
	case errors.Is(err, models.ErrAuthenticationRequired):
		slog.Info("Not authenticated. Need to log in first.")
		return models.OutcomeAuthRequired, err
	case err != nil:
		return models.OutcomeFallback, err
	case form == nil:
		return models.OutcomeFallback, nil
	}

	payload := url.Values{}
	payload.Set("csrfToken", form.AntiForgeryToken)
	payload.Set("userId", form.UserID)
	payload.Set("date", date.DayMonthYear())
	payload.Set("weight", models.FormatWeight(weight))
	payload.Set("feeling", "")
	payload.Set("note", "")

	res, err := u.page.PostForm(ctx, form.SubmitURL, payload)
	if err != nil {
		return models.OutcomeFallback, err
	}

	switch {
	case res.Redirected && isAuthURL(res.URL, u.cfg.AuthHost):
		// The token belonged to a session that is gone
		u.forms.Invalidate()
		return models.OutcomeFallback, fmt.Errorf("%w: submission redirected to %s", models.ErrAuthenticationRequired, res.URL)
	case res.OK:
		slog.Info("Direct weight update successful", "status", res.Status)
		return models.OutcomeSuccess, nil
	case res.Status == http.StatusForbidden:
		slog.Info("CSRF token may be expired, clearing stored form data")
		u.forms.Invalidate()
		return models.OutcomeFallback, fmt.Errorf("%w: status %d", models.ErrStaleToken, res.Status)
	default:
		return models.OutcomeFallback, fmt.Errorf("form submission failed with status %d", res.Status)
	}
}

// tryDom navigates to the day page, fills the weight input and saves it,
// then reads the input back to verify the stored value.
func (u *Updater) tryDom(ctx context.Context, weight float64, date models.CalendarDate) (models.Outcome, error) {
	done := logutil.Timed(slog.Default(), "Weight Update")
	defer done()

	dayURL := DayURL(u.cfg.BaseURL, date)
	value := models.FormatWeight(weight)
	slog.Info("Attempting to update weight", "weight", value, "date", date.DayMonthYear(), "url", dayURL)

	// A slow load is not fatal, the form checks below decide
	if err := u.page.Navigate(ctx, dayURL, u.cfg.NavigationTimeout); err != nil {
		if ctx.Err() != nil {
			return models.OutcomeFailure, err
		}
		slog.Warn("Day page navigation did not settle", "error", err)
	}

	current, err := u.page.URL(ctx)
	if err != nil {
		return models.OutcomeFailure, err
	}
	if isAuthURL(current, u.cfg.AuthHost) {
		slog.Info("Not authenticated. Need to log in first.")
		return models.OutcomeAuthRequired, fmt.Errorf("%w: redirected to %s", models.ErrAuthenticationRequired, current)
	}

	if err := u.page.WaitFor(ctx, DailyFormSelector, u.cfg.ElementTimeout); err != nil {
		slog.Info("dailyDataForm not found by wait, checking directly", "error", err)
	}
	if _, ok, err := u.page.Find(ctx, DailyFormChain); err != nil {
		return models.OutcomeFailure, err
	} else if !ok {
		return models.OutcomeFailure, fmt.Errorf("%w: could not locate weight input form", models.ErrElementNotFound)
	}

	if err := u.page.WaitFor(ctx, WeightInputSelector, u.cfg.ElementTimeout); err != nil {
		slog.Info("Weight input not found by wait", "error", err)
	}
	set, err := u.page.SetValue(ctx, WeightInputChain, value)
	if err != nil {
		return models.OutcomeFailure, err
	}
	if !set {
		return models.OutcomeFailure, fmt.Errorf("%w: weight input", models.ErrElementNotFound)
	}

	slog.Info("Submitting weight update")
	if err := u.submit(ctx); err != nil {
		return models.OutcomeFailure, err
	}

	if err := sleep(ctx, u.cfg.SettleDelay); err != nil {
		return models.OutcomeFailure, err
	}

	stored, found, err := u.page.Value(ctx, WeightInputChain)
	if err != nil {
		return models.OutcomeFailure, err
	}
	slog.Info("Weight value after form submission", "value", stored)

	if got, ok := models.ParseWeight(stored); found && ok && models.WeightsEqual(got, weight) {
		slog.Info("Weight successfully updated", "weight", value, "date", date.DayMonthYear())
		return models.OutcomeSuccess, nil
	}
	return models.OutcomeFailure, fmt.Errorf("%w: input shows %q, want %s", models.ErrNotVerified, stored, value)
}

type clickResult struct {
	clicked bool
	err     error
}

// submit races the post-save navigation against locating and pressing the
// save control. Whichever settles first ends the race; a navigation timeout
// is tolerated, a missing control is not.
func (u *Updater) submit(ctx context.Context) error {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wait := u.page.ExpectNavigation(raceCtx, u.cfg.SubmitNavigationTimeout)

	navDone := make(chan error, 1)
	clickDone := make(chan clickResult, 1)

	go func() { navDone <- wait() }()
	go func() {
		clicked, err := u.pressSave(raceCtx)
		clickDone <- clickResult{clicked: clicked, err: err}
	}()

	var res clickResult
	select {
	case res = <-clickDone:
	case err := <-navDone:
		if err != nil {
			slog.Info("Navigation timeout - will check if update succeeded anyway", "error", err)
		}
		// The click settles quickly; its result decides a missing control
		res = <-clickDone
	}

	if res.err != nil {
		return res.err
	}
	if !res.clicked {
		return fmt.Errorf("%w: failed to click save button or submit form", models.ErrElementNotFound)
	}
	return nil
}

func (u *Updater) pressSave(ctx context.Context) (bool, error) {
	target, ok, err := u.page.Find(ctx, SaveChain)
	if err != nil {
		return false, err
	}
	if ok {
		if err := u.page.Click(ctx, target); err != nil {
			return false, err
		}
		return true, nil
	}
	return u.page.SubmitForm(ctx, DailyFormSelector)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
