package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/config"
	"dev/bravebird/weightsync-go/pkg/models"
	"dev/bravebird/weightsync-go/pkg/session"
	"dev/bravebird/weightsync-go/pkg/temporal/workflows"
	"dev/bravebird/weightsync-go/pkg/weight"
)

// RunStore persists what a run did. It is optional.
type RunStore interface {
	RecordEntry(ctx context.Context, runID string, result models.EntryResult) error
	CompleteSyncRun(ctx context.Context, id string, result models.SyncResult) error
}

// PageOpener opens a page for a new session. The closer releases the page and
// whatever owns it.
type PageOpener func(ctx context.Context, init models.SessionInit) (browser.Page, io.Closer, error)

// sessionPool holds the browser sessions of this worker
type sessionPool struct {
	sessions map[string]*sessionData
	mu       sync.RWMutex
}

// sessionData holds one page and the components driving it
type sessionData struct {
	page      browser.Page
	closer    io.Closer
	updater   *weight.Updater
	auth      *session.Authenticator
	createdAt time.Time
}

// Activities holds activity implementations. Sessions live in this
// process, so a run's activities must reach the worker that opened it.
type Activities struct {
	cfg     *config.Config
	store   RunStore
	open    PageOpener
	updater weight.Config
	pool    *sessionPool
}

// NewActivities creates activities that launch a real browser per session.
// store may be nil.
func NewActivities(cfg *config.Config, store RunStore) *Activities {
	return NewActivitiesWithOpener(cfg, store, launchPage(cfg), weight.DefaultConfig(cfg.FlowURL))
}

// NewActivitiesWithOpener creates activities that get their pages from open
// and drive them with the given updater settings
func NewActivitiesWithOpener(cfg *config.Config, store RunStore, open PageOpener, updater weight.Config) *Activities {
	return &Activities{
		cfg:     cfg,
		store:   store,
		open:    open,
		updater: updater,
		pool:    &sessionPool{sessions: make(map[string]*sessionData)},
	}
}

// InitializeSessionActivity opens a page and restores the saved cookies
func (a *Activities) InitializeSessionActivity(ctx context.Context, input models.SessionInit) (models.SessionHandle, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Initializing browser session", "headless", input.Headless)

	page, closer, err := a.open(ctx, input)
	if err != nil {
		return models.SessionHandle{}, err
	}

	store := session.NewCookieStore(a.cfg.CookieFile)
	if session.Restore(ctx, page, store) {
		logger.Info("Restored saved session cookies")
	}

	ucfg := a.updater
	ucfg.DisableDirect = ucfg.DisableDirect || input.DisableDirect || a.cfg.DisableDirect

	sessionID := uuid.New().String()
	a.pool.mu.Lock()
	a.pool.sessions[sessionID] = &sessionData{
		page:      page,
		closer:    closer,
		updater:   weight.NewUpdater(page, ucfg),
		auth:      session.NewAuthenticator(page, store, a.cfg.Credentials, a.cfg.AuthURL),
		createdAt: time.Now(),
	}
	a.pool.mu.Unlock()

	logger.Info("Browser session created", "sessionID", sessionID)

	url, _ := page.URL(ctx)
	return models.SessionHandle{SessionID: sessionID, PageURL: url}, nil
}

// AuthenticateActivity logs the session in. A failed login is false, not an
// error.
func (a *Activities) AuthenticateActivity(ctx context.Context, sessionID string) (bool, error) {
	data, err := a.session(sessionID)
	if err != nil {
		return false, err
	}
	activity.GetLogger(ctx).Info("Authenticating session", "sessionID", sessionID)
	return data.auth.Authenticate(ctx), nil
}

// UpdateWeightActivity uploads one entry. Failed outcomes are reported in the
// result; only a missing form is returned as a (non-retryable) error.
func (a *Activities) UpdateWeightActivity(ctx context.Context, input models.UpdateInput) (models.EntryResult, error) {
	logger := activity.GetLogger(ctx)
	data, err := a.session(input.SessionID)
	if err != nil {
		return models.EntryResult{}, err
	}

	logger.Info("Updating weight", "date", input.Entry.Date.String(), "weight", input.Entry.WeightKg, "attempt", input.Attempt)
	activity.RecordHeartbeat(ctx, fmt.Sprintf("Updating %s", input.Entry.Date))

	start := time.Now()
	outcome, err := data.updater.Update(ctx, input.Entry.WeightKg, input.Entry.Date)
	now := time.Now()

	result := models.EntryResult{
		ID:         workflows.EntryResultID(input.RunID, input.Entry.Date),
		RunID:      input.RunID,
		Date:       input.Entry.Date.String(),
		WeightKg:   input.Entry.WeightKg,
		Outcome:    outcome,
		Attempts:   input.Attempt,
		ExecutedAt: &now,
		Duration:   now.Sub(start).Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, models.ErrElementNotFound) {
			return result, temporal.NewNonRetryableApplicationError(err.Error(), workflows.ElementNotFoundError, err)
		}
		result.ErrorMessage = err.Error()
	}

	logger.Info("Weight update finished", "date", result.Date, "outcome", outcome, "duration", result.Duration)
	return result, nil
}

// RecordEntryActivity stores one entry result
func (a *Activities) RecordEntryActivity(ctx context.Context, result models.EntryResult) error {
	if a.store == nil {
		return nil
	}
	return a.store.RecordEntry(ctx, result.RunID, result)
}

// FinishRunActivity stores the final result of a run
func (a *Activities) FinishRunActivity(ctx context.Context, result models.SyncResult) error {
	if a.store == nil {
		return nil
	}
	activity.GetLogger(ctx).Info("Storing run result", "runID", result.RunID, "status", result.Status)
	return a.store.CompleteSyncRun(ctx, result.RunID, result)
}

// CloseSessionActivity closes a browser session
func (a *Activities) CloseSessionActivity(ctx context.Context, sessionID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Closing browser session", "sessionID", sessionID)

	a.pool.mu.Lock()
	data, ok := a.pool.sessions[sessionID]
	delete(a.pool.sessions, sessionID)
	a.pool.mu.Unlock()

	if !ok {
		return nil // Already closed
	}
	if data.closer != nil {
		if err := data.closer.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}
	return nil
}

func (a *Activities) session(id string) (*sessionData, error) {
	a.pool.mu.RLock()
	defer a.pool.mu.RUnlock()
	data, ok := a.pool.sessions[id]
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError("browser session not found: "+id, "SessionNotFoundError", nil)
	}
	return data, nil
}

// launchPage starts one Chrome per session. The process outlives the
// activity that launched it, so it is not bound to the activity context.
func launchPage(cfg *config.Config) PageOpener {
	return func(ctx context.Context, init models.SessionInit) (browser.Page, io.Closer, error) {
		opts := browser.DefaultOptions()
		if cfg.ChromeBin != "" {
			opts.Bin = cfg.ChromeBin
		}
		opts.Headless = init.Headless

		b, err := browser.Launch(context.Background(), opts)
		if err != nil {
			return nil, nil, err
		}
		page, err := b.NewPage(ctx)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		return page, b, nil
	}
}
