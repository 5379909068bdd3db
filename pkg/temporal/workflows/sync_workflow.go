package workflows

import (
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/weightsync-go/pkg/batch"
	"dev/bravebird/weightsync-go/pkg/models"
)

// ProgressQuery returns the current models.SyncResult of a running workflow
const ProgressQuery = "getProgress"

// Activity names, as registered from activities.Activities
const (
	InitializeSessionActivity = "InitializeSessionActivity"
	AuthenticateActivity      = "AuthenticateActivity"
	UpdateWeightActivity      = "UpdateWeightActivity"
	RecordEntryActivity       = "RecordEntryActivity"
	CloseSessionActivity      = "CloseSessionActivity"
	FinishRunActivity         = "FinishRunActivity"
)

// ElementNotFoundError is the application error type of an update that
// cannot find the daily form. Retrying it does not help.
const ElementNotFoundError = "ElementNotFoundError"

const defaultActivityTimeout = 2 * time.Minute

// WorkflowID is the workflow ID used for a sync run
func WorkflowID(runID string) string {
	return "weight-sync-" + runID
}

// EntryResultID is the stable ID of an entry's result within a run, so that
// recording it again overwrites the row.
func EntryResultID(runID string, date models.CalendarDate) string {
	return fmt.Sprintf("%s-%s", runID, date)
}

// SyncWeightsWorkflow uploads a batch of daily entries through one browser
// session held by the worker. Entries go oldest first. The first failed
// entry triggers a single login and a retry. A failed login ends the run.
func SyncWeightsWorkflow(ctx workflow.Context, input models.SyncInput) (models.SyncResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting weight sync workflow", "runID", input.RunID, "entries", len(input.Entries))

	entries := append([]models.DailyEntry(nil), input.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Compare(entries[j].Date) < 0
	})

	result := models.SyncResult{
		RunID:        input.RunID,
		Status:       models.StatusRunning,
		EntryResults: make([]models.EntryResult, 0, len(entries)),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.SyncResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	timeout := defaultActivityTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ElementNotFoundError},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Updates are never retried by Temporal, the policy decides instead
	updateOptions := activityOptions
	updateOptions.RetryPolicy = &temporal.RetryPolicy{
		MaximumAttempts:        1,
		NonRetryableErrorTypes: []string{ElementNotFoundError},
	}
	updateCtx := workflow.WithActivityOptions(ctx, updateOptions)

	// Bookkeeping must run even when the workflow is canceled
	cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)

	finish := func() (models.SyncResult, error) {
		if result.Status == models.StatusRunning {
			result.Status = models.StatusFor(result.Result, result.Aborted)
		}
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
		if err := workflow.ExecuteActivity(cleanupCtx, FinishRunActivity, result).Get(cleanupCtx, nil); err != nil {
			logger.Warn("Failed to store run result", "error", err)
		}
		logger.Info("Workflow completed", "status", result.Status, "duration", result.TotalDuration)
		return result, nil
	}

	if len(entries) == 0 {
		return finish()
	}

	var sess models.SessionHandle
	err = workflow.ExecuteActivity(ctx, InitializeSessionActivity, models.SessionInit{
		Headless:      input.Headless,
		DisableDirect: input.DisableDirect,
	}).Get(ctx, &sess)
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = "Failed to initialize browser: " + err.Error()
		result.Result.Skipped = len(entries)
		return finish()
	}

	defer func() {
		_ = workflow.ExecuteActivity(cleanupCtx, CloseSessionActivity, sess.SessionID).Get(cleanupCtx, nil)
	}()

	authenticate := func() bool {
		var ok bool
		if err := workflow.ExecuteActivity(ctx, AuthenticateActivity, sess.SessionID).Get(ctx, &ok); err != nil {
			logger.Error("Authentication activity failed", "error", err)
			return false
		}
		return ok
	}

	policy := &batch.Policy{}
	if input.AuthenticateFirst {
		if policy.OnAuthentication(authenticate()) == batch.Abort {
			result.Aborted = true
			result.ErrorMessage = "authentication failed"
			result.Result.Skipped = len(entries)
			return finish()
		}
	}

	canceled := func(i int, err error) (models.SyncResult, error) {
		result.Result.Skipped += len(entries) - i
		result.Status = models.StatusCanceled
		result.ErrorMessage = err.Error()
		return finish()
	}

	delay := time.Duration(input.DelayMillis) * time.Millisecond
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return canceled(i, err)
		}
		if i > 0 && delay > 0 {
			if err := workflow.Sleep(ctx, delay); err != nil {
				return canceled(i, err)
			}
		}

		logger.Info("Uploading entry", "index", i+1, "total", len(entries), "date", entry.Date.String())

		er := models.EntryResult{
			ID:       EntryResultID(input.RunID, entry.Date),
			RunID:    input.RunID,
			Date:     entry.Date.String(),
			WeightKg: entry.WeightKg,
		}
		abort := false
		for {
			er.Attempts++
			var report models.EntryResult
			err := workflow.ExecuteActivity(updateCtx, UpdateWeightActivity, models.UpdateInput{
				SessionID: sess.SessionID,
				RunID:     input.RunID,
				Entry:     entry,
				Attempt:   er.Attempts,
			}).Get(ctx, &report)

			er.Outcome = report.Outcome
			er.ErrorMessage = report.ErrorMessage
			er.ExecutedAt = report.ExecutedAt
			er.Duration += report.Duration
			if err != nil {
				er.Outcome = models.OutcomeFailure
				er.ErrorMessage = err.Error()
				if temporal.IsCanceledError(err) {
					break
				}
			}
			if er.Outcome.OK() {
				er.ErrorMessage = ""
				break
			}
			if policy.OnFailure() == batch.Advance {
				logger.Warn("Update failed", "date", er.Date, "outcome", er.Outcome, "error", er.ErrorMessage)
				break
			}

			logger.Info("Update failed, authenticating and retrying", "date", er.Date, "outcome", er.Outcome)
			er.Reauthenticated = true
			if policy.OnAuthentication(authenticate()) == batch.Abort {
				abort = true
				break
			}
		}
		if er.ExecutedAt == nil {
			now := workflow.Now(ctx)
			er.ExecutedAt = &now
		}

		result.EntryResults = append(result.EntryResults, er)
		if er.Outcome.OK() {
			result.Result.Successful++
		} else {
			result.Result.Failed++
		}

		if err := workflow.ExecuteActivity(cleanupCtx, RecordEntryActivity, er).Get(cleanupCtx, nil); err != nil {
			logger.Warn("Failed to record entry result", "date", er.Date, "error", err)
		}

		if abort {
			logger.Error("Authentication failed, stopping run")
			result.Aborted = true
			result.ErrorMessage = "re-authentication failed"
			result.Result.Skipped += len(entries) - i - 1
			return finish()
		}
	}

	return finish()
}
