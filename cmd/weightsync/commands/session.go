package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"dev/bravebird/weightsync-go/pkg/batch"
	"dev/bravebird/weightsync-go/pkg/browser"
	"dev/bravebird/weightsync-go/pkg/database"
	"dev/bravebird/weightsync-go/pkg/logutil"
	"dev/bravebird/weightsync-go/pkg/models"
	"dev/bravebird/weightsync-go/pkg/session"
	"dev/bravebird/weightsync-go/pkg/weight"
)

// localSession is one browser page with the components driving it
type localSession struct {
	browser *browser.Browser
	updater *weight.Updater
	auth    *session.Authenticator
}

func openSession(ctx context.Context) (*localSession, error) {
	done := logutil.Timed(slog.Default(), "Browser Launch")
	opts := browser.DefaultOptions()
	if cfg.ChromeBin != "" {
		opts.Bin = cfg.ChromeBin
	}
	opts.Headless = cfg.Headless

	b, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	done()

	page, err := b.NewPage(ctx)
	if err != nil {
		b.Close()
		return nil, err
	}

	store := session.NewCookieStore(cfg.CookieFile)
	session.Restore(ctx, page, store)

	ucfg := weight.DefaultConfig(cfg.FlowURL)
	ucfg.DisableDirect = cfg.DisableDirect

	return &localSession{
		browser: b,
		updater: weight.NewUpdater(page, ucfg),
		auth:    session.NewAuthenticator(page, store, cfg.Credentials, cfg.AuthURL),
	}, nil
}

func (s *localSession) Close() {
	if err := s.browser.Close(); err != nil {
		slog.Warn("Failed to close browser", "error", err)
		return
	}
	slog.Info("Browser closed")
}

// runHistory records a local run when MYSQL_DSN is set. A nil *runHistory
// records nothing.
type runHistory struct {
	db    *database.DB
	runID string
}

func openHistory(ctx context.Context, source string, count int) *runHistory {
	if cfg.MySQLDSN == "" {
		return nil
	}
	db, err := database.New(cfg.MySQLDSN)
	if err != nil {
		slog.Warn("Running without run history", "error", err)
		return nil
	}
	if err := db.Migrate(ctx); err != nil {
		slog.Warn("Running without run history", "error", err)
		db.Close()
		return nil
	}

	h := &runHistory{db: db, runID: uuid.New().String()}
	err = db.CreateSyncRun(ctx, &models.SyncRun{
		ID:         h.runID,
		Source:     source,
		Status:     models.StatusRunning,
		EntryCount: count,
	})
	if err != nil {
		slog.Warn("Running without run history", "error", err)
		db.Close()
		return nil
	}
	return h
}

func (h *runHistory) options(opts batch.Options) batch.Options {
	if h == nil {
		return opts
	}
	opts.RunID = h.runID
	opts.Recorder = h.db
	return opts
}

func (h *runHistory) finish(ctx context.Context, result models.SyncResult) {
	if h == nil {
		return
	}
	if err := h.db.CompleteSyncRun(context.WithoutCancel(ctx), h.runID, result); err != nil {
		slog.Warn("Failed to store run result", "error", err)
	}
	h.db.Close()
}

// runBatch uploads entries through a fresh browser session
func runBatch(ctx context.Context, source string, entries []models.DailyEntry, authenticateFirst bool) (models.SyncResult, error) {
	sess, err := openSession(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}
	defer sess.Close()

	history := openHistory(ctx, source, len(entries))
	opts := history.options(batch.Options{
		AuthenticateFirst: authenticateFirst,
		Delay:             cfg.RequestDelay,
	})

	result := batch.New(sess.updater, sess.auth, opts).Run(ctx, entries)
	history.finish(ctx, result)
	return result, nil
}
