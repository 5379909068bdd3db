package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"dev/bravebird/weightsync-go/pkg/ingestion"
	"dev/bravebird/weightsync-go/pkg/models"
	"dev/bravebird/weightsync-go/pkg/temporal/workflows"
)

const maxUploadSize = 10 << 20

// RunStore is the run history used by the handlers
type RunStore interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error
	UpdateSyncRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	GetEntryResults(ctx context.Context, runID string) ([]models.EntryResult, error)
}

// WorkflowClient is the part of client.Client the handlers use
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Options are the settings applied to every run started through the API
type Options struct {
	TaskQueue     string
	Headless      bool
	DisableDirect bool
	Delay         time.Duration
	PollInterval  time.Duration
}

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient WorkflowClient
	opts           Options
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers. store may be nil, in which case runs
// still start but cannot be listed.
func NewHandlers(store RunStore, temporalClient WorkflowClient, opts Options) *Handlers {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		opts:           opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the API routes on router
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/weights", h.UpdateWeight).Methods("POST")
	api.HandleFunc("/uploads", h.UploadLog).Methods("POST")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/stream", h.StreamRunUpdates).Methods("GET")
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":   "ok",
		"database": h.store != nil,
	})
}

// ==================== Upload Handlers ====================

// UpdateWeight starts a run for a single day. The date defaults to today.
func (h *Handlers) UpdateWeight(w http.ResponseWriter, r *http.Request) {
	var req models.WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Weight <= 0 || math.IsNaN(req.Weight) || math.IsInf(req.Weight, 0) {
		http.Error(w, "Invalid weight", http.StatusBadRequest)
		return
	}

	date := models.Today()
	if req.Date != "" {
		d, err := models.ParseCalendarDate(req.Date)
		if err != nil {
			http.Error(w, "Invalid date: "+err.Error(), http.StatusBadRequest)
			return
		}
		date = d
	}

	h.startRun(w, r, "api", []models.DailyEntry{{Date: date, WeightKg: req.Weight}}, false)
}

// UploadLog starts a bulk run from an uploaded CSV. With raw=true the file is
// a raw measurement log and is reduced to one entry per day first.
func (h *Handlers) UploadLog(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var entries []models.DailyEntry
	if r.FormValue("raw") == "true" {
		samples, err := ingestion.ParseRaw(file)
		if err != nil {
			http.Error(w, "Failed to parse log: "+err.Error(), http.StatusBadRequest)
			return
		}
		entries = ingestion.Reduce(samples, ingestion.Ascending)
	} else {
		entries, err = ingestion.ParseCleaned(file)
		if err != nil {
			http.Error(w, "Failed to parse log: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if len(entries) == 0 {
		http.Error(w, "No entries in file", http.StatusBadRequest)
		return
	}

	h.startRun(w, r, "upload", entries, true)
}

func (h *Handlers) startRun(w http.ResponseWriter, r *http.Request, source string, entries []models.DailyEntry, authenticateFirst bool) {
	ctx := r.Context()
	runID := uuid.New().String()

	if h.store != nil {
		run := &models.SyncRun{
			ID:         runID,
			Source:     source,
			Status:     models.StatusPending,
			EntryCount: len(entries),
		}
		if err := h.store.CreateSyncRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	input := models.SyncInput{
		RunID:             runID,
		Entries:           entries,
		AuthenticateFirst: authenticateFirst,
		DisableDirect:     h.opts.DisableDirect,
		Headless:          h.opts.Headless,
		DelayMillis:       h.opts.Delay.Milliseconds(),
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(runID),
		TaskQueue: h.opts.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.SyncWeightsWorkflow, input)
	if err != nil {
		if h.store != nil {
			_ = h.store.UpdateSyncRunStatus(ctx, runID, models.StatusFailed, err.Error())
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		if err := h.store.SetTemporalIDs(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
			slog.Warn("Failed to store workflow IDs", "runID", runID, "error", err)
		}
		if err := h.store.UpdateSyncRunStatus(ctx, runID, models.StatusRunning, ""); err != nil {
			slog.Warn("Failed to update run status", "runID", runID, "error", err)
		}
	}

	slog.Info("Started sync run", "runID", runID, "source", source, "entries", len(entries))

	respondJSON(w, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"entries":              len(entries),
		"status":               models.StatusRunning,
	})
}

// ==================== Run Handlers ====================

// ListRuns lists the most recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListSyncRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its entry results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetSyncRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, _ := h.store.GetEntryResults(ctx, id)
	run.EntryResults = results

	respondJSON(w, run)
}

// CancelRun cancels a running workflow
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	workflowID, temporalRunID := workflows.WorkflowID(id), ""
	if h.store != nil {
		run, err := h.store.GetSyncRun(ctx, id)
		if err != nil || run == nil {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		if run.Status.Terminal() {
			http.Error(w, "Run already finished", http.StatusConflict)
			return
		}
		if run.TemporalWorkflowID != "" {
			workflowID, temporalRunID = run.TemporalWorkflowID, run.TemporalRunID
		}
	}

	if err := h.temporalClient.CancelWorkflow(ctx, workflowID, temporalRunID); err != nil {
		http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		_ = h.store.UpdateSyncRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user")
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates streams run progress via WebSocket until the run ends
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	var lastStatus models.RunStatus
	lastCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, results, err := h.progress(ctx, runID)
			if err != nil {
				continue
			}

			// Send update if status or results changed
			if status == lastStatus && len(results) == lastCount {
				continue
			}
			msg := models.WSMessage{
				Type: "run_update",
				Payload: map[string]interface{}{
					"run_id":        runID,
					"status":        status,
					"entry_results": results,
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			lastStatus, lastCount = status, len(results)

			if status.Terminal() {
				return
			}
		}
	}
}

// progress asks the workflow first and falls back to the run history
func (h *Handlers) progress(ctx context.Context, runID string) (models.RunStatus, []models.EntryResult, error) {
	if h.temporalClient != nil {
		resp, err := h.temporalClient.QueryWorkflow(ctx, workflows.WorkflowID(runID), "", workflows.ProgressQuery)
		if err == nil {
			var result models.SyncResult
			if resp.Get(&result) == nil && result.Status != "" {
				return result.Status, result.EntryResults, nil
			}
		}
	}

	if h.store == nil {
		return "", nil, errors.New("no progress source")
	}
	run, err := h.store.GetSyncRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if run == nil {
		return "", nil, errors.New("run not found")
	}
	results, _ := h.store.GetEntryResults(ctx, runID)
	return run.Status, results, nil
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
