package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/mocks"

	"dev/bravebird/weightsync-go/pkg/models"
)

type fakeStore struct {
	mu      sync.Mutex
	runs    map[string]*models.SyncRun
	results map[string][]models.EntryResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: make(map[string]*models.SyncRun), results: make(map[string][]models.EntryResult)}
}

func (s *fakeStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeStore) GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *fakeStore) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (s *fakeStore) SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].TemporalWorkflowID = workflowID
	s.runs[id].TemporalRunID = runID
	return nil
}

func (s *fakeStore) UpdateSyncRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Status = status
	s.runs[id].ErrorMessage = errorMsg
	return nil
}

func (s *fakeStore) GetEntryResults(ctx context.Context, runID string) ([]models.EntryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[runID], nil
}

func (s *fakeStore) only(t *testing.T) *models.SyncRun {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.runs, 1)
	for _, run := range s.runs {
		return run
	}
	return nil
}

type fakeClient struct {
	startErr error
	options  []client.StartWorkflowOptions
	inputs   []models.SyncInput
	canceled []string
}

func (c *fakeClient) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.options = append(c.options, options)
	c.inputs = append(c.inputs, args[0].(models.SyncInput))

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(options.ID)
	run.On("GetRunID").Return("temporal-run-1")
	return run, nil
}

func (c *fakeClient) CancelWorkflow(ctx context.Context, workflowID string, runID string) error {
	c.canceled = append(c.canceled, workflowID)
	return nil
}

func (c *fakeClient) QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	return nil, errors.New("workflow not found")
}

func newServer(store RunStore, wc WorkflowClient) http.Handler {
	router := mux.NewRouter()
	NewHandlers(store, wc, Options{TaskQueue: "weight-sync", Headless: true, Delay: time.Second, PollInterval: 10 * time.Millisecond}).Register(router)
	return router
}

func do(t *testing.T, h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newServer(nil, &fakeClient{}), "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":false}`, rec.Body.String())
}

func TestUpdateWeightValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `weight=72`},
		{name: "zero weight", body: `{"weight":0}`},
		{name: "negative weight", body: `{"weight":-3.5}`},
		{name: "string weight", body: `{"weight":"heavy"}`},
		{name: "bad date", body: `{"weight":72.3,"date":"07.03.2025"}`},
		{name: "impossible date", body: `{"weight":72.3,"date":"2025-02-30"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc := &fakeClient{}
			rec := do(t, newServer(newFakeStore(), wc), "POST", "/api/weights", bytes.NewBufferString(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, wc.inputs)
		})
	}
}

func TestUpdateWeightStartsRun(t *testing.T) {
	store := newFakeStore()
	wc := &fakeClient{}

	rec := do(t, newServer(store, wc), "POST", "/api/weights", bytes.NewBufferString(`{"weight":72.34,"date":"2025-03-07"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	runID := resp["run_id"].(string)
	assert.Equal(t, "weight-sync-"+runID, resp["temporal_workflow_id"])

	require.Len(t, wc.inputs, 1)
	in := wc.inputs[0]
	assert.Equal(t, runID, in.RunID)
	assert.False(t, in.AuthenticateFirst)
	assert.True(t, in.Headless)
	assert.Equal(t, int64(1000), in.DelayMillis)
	require.Len(t, in.Entries, 1)
	assert.Equal(t, "2025-03-07", in.Entries[0].Date.String())
	assert.Equal(t, 72.34, in.Entries[0].WeightKg)
	assert.Equal(t, "weight-sync", wc.options[0].TaskQueue)

	run := store.only(t)
	assert.Equal(t, models.StatusRunning, run.Status)
	assert.Equal(t, "api", run.Source)
	assert.Equal(t, "temporal-run-1", run.TemporalRunID)
	assert.Equal(t, 1, run.EntryCount)
}

func TestUpdateWeightDefaultsToToday(t *testing.T) {
	wc := &fakeClient{}
	rec := do(t, newServer(nil, wc), "POST", "/api/weights", bytes.NewBufferString(`{"weight":72.3}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, wc.inputs, 1)
	today := models.Today()
	assert.Equal(t, today, wc.inputs[0].Entries[0].Date)
}

func TestStartFailureMarksRunFailed(t *testing.T) {
	store := newFakeStore()
	wc := &fakeClient{startErr: errors.New("temporal unavailable")}

	rec := do(t, newServer(store, wc), "POST", "/api/weights", bytes.NewBufferString(`{"weight":72.3}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	run := store.only(t)
	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "temporal unavailable")
}

func multipartBody(t *testing.T, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if content != "" {
		fw, err := mw.CreateFormFile("file", "weights.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadLog(t *testing.T) {
	raw := "// exported by the scale\n" +
		"Date,Weight\n" +
		`"2025-03-02 07:10:00","72.1"` + "\n" +
		`"2025-03-01 06:55:00","72.9 kg"` + "\n" +
		`"2025-03-02 21:40:00","72.6"` + "\n" +
		`"2025-03-03 07:00:00","n/a"` + "\n"
	cleaned := "Date,Weight (kg)\n2025-03-02,72.60\n2025-03-01,72.90\n"

	tests := []struct {
		name      string
		content   string
		fields    map[string]string
		wantCode  int
		wantDates []string
	}{
		{name: "raw log", content: raw, fields: map[string]string{"raw": "true"}, wantCode: http.StatusOK, wantDates: []string{"2025-03-01", "2025-03-02"}},
		{name: "cleaned log", content: cleaned, wantCode: http.StatusOK, wantDates: []string{"2025-03-02", "2025-03-01"}},
		{name: "header only", content: "Date,Weight (kg)\n", wantCode: http.StatusBadRequest},
		{name: "missing file", fields: map[string]string{"raw": "true"}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc := &fakeClient{}
			body, ct := multipartBody(t, tt.content, tt.fields)

			rec := do(t, newServer(newFakeStore(), wc), "POST", "/api/uploads", body, ct)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Empty(t, wc.inputs)
				return
			}

			require.Len(t, wc.inputs, 1)
			in := wc.inputs[0]
			assert.True(t, in.AuthenticateFirst)
			var dates []string
			for _, e := range in.Entries {
				dates = append(dates, e.Date.String())
			}
			assert.Equal(t, tt.wantDates, dates)
		})
	}
}

func TestUploadRawKeepsLastSampleOfDay(t *testing.T) {
	raw := "Date,Weight\n" +
		`"2025-03-02 07:10:00","72.1"` + "\n" +
		`"2025-03-02 21:40:00","72.6"` + "\n"
	wc := &fakeClient{}
	body, ct := multipartBody(t, raw, map[string]string{"raw": "true"})

	rec := do(t, newServer(nil, wc), "POST", "/api/uploads", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, wc.inputs[0].Entries, 1)
	assert.Equal(t, 72.6, wc.inputs[0].Entries[0].WeightKg)
}

func TestRunsRequireDatabase(t *testing.T) {
	h := newServer(nil, &fakeClient{})
	for _, path := range []string{"/api/runs", "/api/runs/abc"} {
		rec := do(t, h, "GET", path, nil, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestGetRun(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.CreateSyncRun(context.Background(), &models.SyncRun{ID: "r1", Source: "upload", Status: models.StatusPartial}))
	store.results["r1"] = []models.EntryResult{{ID: "e1", RunID: "r1", Date: "2025-03-01", Outcome: models.OutcomeSuccess}}
	h := newServer(store, &fakeClient{})

	rec := do(t, h, "GET", "/api/runs/r1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.SyncRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.StatusPartial, run.Status)
	require.Len(t, run.EntryResults, 1)

	rec = do(t, h, "GET", "/api/runs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "GET", "/api/runs?limit=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/api/runs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.SyncRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestCancelRun(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.CreateSyncRun(ctx, &models.SyncRun{ID: "r1", Status: models.StatusRunning, TemporalWorkflowID: "weight-sync-r1"}))
	require.NoError(t, store.CreateSyncRun(ctx, &models.SyncRun{ID: "r2", Status: models.StatusSuccess}))
	wc := &fakeClient{}
	h := newServer(store, wc)

	rec := do(t, h, "POST", "/api/runs/r1/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"weight-sync-r1"}, wc.canceled)
	run, _ := store.GetSyncRun(ctx, "r1")
	assert.Equal(t, models.StatusCanceled, run.Status)

	rec = do(t, h, "POST", "/api/runs/r2/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "POST", "/api/runs/nope/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Without a database the workflow ID is derived from the run ID
	wc = &fakeClient{}
	rec = do(t, newServer(nil, wc), "POST", "/api/runs/r9/cancel", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"weight-sync-r9"}, wc.canceled)
}

func TestStreamRunUpdatesFallsBackToDatabase(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.CreateSyncRun(context.Background(), &models.SyncRun{ID: "r1", Status: models.StatusSuccess}))
	store.results["r1"] = []models.EntryResult{{ID: "e1", Date: "2025-03-01", Outcome: models.OutcomeSuccess}}

	srv := httptest.NewServer(newServer(store, &fakeClient{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/r1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			RunID        string               `json:"run_id"`
			Status       models.RunStatus     `json:"status"`
			EntryResults []models.EntryResult `json:"entry_results"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run_update", msg.Type)
	assert.Equal(t, "r1", msg.Payload.RunID)
	assert.Equal(t, models.StatusSuccess, msg.Payload.Status)
	assert.Len(t, msg.Payload.EntryResults, 1)

	// The stream closes after a terminal status
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
