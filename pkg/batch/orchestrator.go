// Package batch uploads a sequence of daily entries through one session,
// re-authenticating once when the session turns out to be gone.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/weightsync-go/pkg/logutil"
	"dev/bravebird/weightsync-go/pkg/models"
)

// Updater uploads the weight of one day
type Updater interface {
	Update(ctx context.Context, raw float64, date models.CalendarDate) (models.Outcome, error)
}

// Authenticator logs the session in
type Authenticator interface {
	Authenticate(ctx context.Context) bool
}

// Recorder persists per-entry results as they happen
type Recorder interface {
	RecordEntry(ctx context.Context, runID string, result models.EntryResult) error
}

// Options configures a batch run
type Options struct {
	// AuthenticateFirst logs in before the first entry. A failed login
	// skips the whole batch.
	AuthenticateFirst bool
	// Delay is the pause between consecutive entries
	Delay time.Duration
	// RunID tags recorded results; a random one is used when empty
	RunID    string
	Recorder Recorder
	// Progress is called with a snapshot after every entry
	Progress func(models.SyncResult)
}

// Orchestrator runs batches against one updater and authenticator
type Orchestrator struct {
	updater Updater
	auth    Authenticator
	opts    Options
}

// New creates an orchestrator
func New(updater Updater, auth Authenticator, opts Options) *Orchestrator {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	return &Orchestrator{updater: updater, auth: auth, opts: opts}
}

// Run uploads entries oldest first. Per-entry failures are counted, never
// returned; only a failed login or ctx cancellation stops the batch early.
func (o *Orchestrator) Run(ctx context.Context, entries []models.DailyEntry) models.SyncResult {
	done := logutil.Timed(slog.Default(), "Batch Upload")

	sorted := append([]models.DailyEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Compare(sorted[j].Date) < 0
	})

	result := models.SyncResult{
		RunID:        o.opts.RunID,
		Status:       models.StatusRunning,
		EntryResults: make([]models.EntryResult, 0, len(sorted)),
	}
	policy := &Policy{}

	finish := func() models.SyncResult {
		if result.Status == models.StatusRunning {
			result.Status = models.StatusFor(result.Result, result.Aborted)
		}
		result.TotalDuration = done().Milliseconds()
		slog.Info("Batch finished",
			"status", result.Status,
			"successful", result.Result.Successful,
			"failed", result.Result.Failed,
			"skipped", result.Result.Skipped)
		return result
	}

	if o.opts.AuthenticateFirst && len(sorted) > 0 {
		slog.Info("Authenticating before upload")
		if policy.OnAuthentication(o.auth.Authenticate(ctx)) == Abort {
			result.Aborted = true
			result.ErrorMessage = "authentication failed"
			result.Result.Skipped = len(sorted)
			return finish()
		}
	}

	for i, entry := range sorted {
		if err := ctx.Err(); err != nil {
			result.Result.Skipped += len(sorted) - i
			result.Status = models.StatusCanceled
			result.ErrorMessage = err.Error()
			return finish()
		}
		if i > 0 && o.opts.Delay > 0 {
			if err := sleep(ctx, o.opts.Delay); err != nil {
				result.Result.Skipped += len(sorted) - i
				result.Status = models.StatusCanceled
				result.ErrorMessage = err.Error()
				return finish()
			}
		}

		slog.Info("Processing entry", "index", i+1, "total", len(sorted), "date", entry.Date, "weight", entry.WeightKg)
		er, abort := o.runEntry(ctx, policy, entry)

		result.EntryResults = append(result.EntryResults, er)
		if er.Outcome.OK() {
			result.Result.Successful++
		} else {
			result.Result.Failed++
		}
		o.record(ctx, er)

		if abort {
			result.Aborted = true
			result.ErrorMessage = "re-authentication failed"
			result.Result.Skipped += len(sorted) - i - 1
			o.progress(result)
			return finish()
		}
		o.progress(result)
	}

	return finish()
}

// runEntry uploads one entry, applying the policy to failures. It reports
// whether the batch must stop.
func (o *Orchestrator) runEntry(ctx context.Context, policy *Policy, entry models.DailyEntry) (models.EntryResult, bool) {
	start := time.Now()
	er := models.EntryResult{
		ID:       uuid.New().String(),
		RunID:    o.opts.RunID,
		Date:     entry.Date.String(),
		WeightKg: entry.WeightKg,
	}
	finish := func(outcome models.Outcome, err error) models.EntryResult {
		now := time.Now()
		er.Outcome = outcome
		er.ExecutedAt = &now
		er.Duration = now.Sub(start).Milliseconds()
		if err != nil {
			er.ErrorMessage = err.Error()
		}
		return er
	}

	for {
		er.Attempts++
		outcome, err := o.updater.Update(ctx, entry.WeightKg, entry.Date)
		if outcome.OK() {
			return finish(outcome, nil), false
		}
		// Never log in again for a batch that is being stopped
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return finish(models.OutcomeFailure, err), false
		}

		if policy.OnFailure() == Advance {
			slog.Warn("Update failed", "date", entry.Date, "outcome", outcome, "error", err)
			return finish(outcome, err), false
		}

		slog.Info("Update failed, authenticating and retrying", "date", entry.Date, "outcome", outcome)
		er.Reauthenticated = true
		if policy.OnAuthentication(o.auth.Authenticate(ctx)) == Abort {
			slog.Error("Authentication failed, stopping batch")
			return finish(outcome, err), true
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, er models.EntryResult) {
	if o.opts.Recorder == nil {
		return
	}
	if err := o.opts.Recorder.RecordEntry(ctx, o.opts.RunID, er); err != nil {
		slog.Warn("Failed to record entry result", "date", er.Date, "error", err)
	}
}

func (o *Orchestrator) progress(result models.SyncResult) {
	if o.opts.Progress == nil {
		return
	}
	snapshot := result
	snapshot.EntryResults = append([]models.EntryResult(nil), result.EntryResults...)
	o.opts.Progress(snapshot)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
