package models

import (
	"time"
)

// ==================== Session Types ====================

// Credentials holds the login for the fitness service. They come from the
// environment and are never written to disk.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both fields are present
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// SessionCookie is a single browser cookie as persisted in the session file.
// The JSON field names follow the DevTools cookie shape so session files
// written by other headless tooling stay loadable.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FormContext holds the structural fields of the daily data form. They do not
// depend on the date being edited and stay valid for as long as the session
// that produced them.
type FormContext struct {
	SubmitURL        string `json:"submit_url"`
	AntiForgeryToken string `json:"anti_forgery_token"`
	UserID           string `json:"user_id"`
}

// ==================== Measurement Types ====================

// MeasurementSample is one row of the raw measurement log
type MeasurementSample struct {
	Timestamp string  `json:"timestamp"` // source-local "YYYY-MM-DD HH:MM[:SS]"
	WeightKg  float64 `json:"weight_kg"`
}

// DailyEntry is the canonical weight for one calendar day
type DailyEntry struct {
	Date     CalendarDate `json:"date"`
	WeightKg float64      `json:"weight_kg"`
}

// ==================== Update Outcomes ====================

// Outcome is the tagged result of one update attempt
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"       // value stored and confirmed
	OutcomeAuthRequired Outcome = "auth_required" // redirected to the identity provider
	OutcomeFallback     Outcome = "fallback"      // direct path unusable, try the DOM path
	OutcomeFailure      Outcome = "failure"       // terminal for this update
)

// OK collapses the outcome to the boolean used at the command boundary
func (o Outcome) OK() bool {
	return o == OutcomeSuccess
}

// BatchResult counts the per-entry results of one batch
type BatchResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Total returns the number of entries the batch was given
func (r BatchResult) Total() int {
	return r.Successful + r.Failed + r.Skipped
}

// ==================== Sync Run Types ====================

// RunStatus represents the status of a sync run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusPartial  RunStatus = "partial"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further progress will be made on the run
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// StatusFor derives the run status from its final counts
func StatusFor(r BatchResult, aborted bool) RunStatus {
	switch {
	case aborted && r.Successful == 0:
		return StatusFailed
	case r.Failed == 0 && r.Skipped == 0:
		return StatusSuccess
	case r.Successful == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// SyncRun represents one upload of daily entries, from the CLI or the API
type SyncRun struct {
	ID                 string     `json:"id" db:"id"`
	Source             string     `json:"source" db:"source"`
	TemporalWorkflowID string     `json:"temporal_workflow_id,omitempty" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id,omitempty" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	EntryCount         int        `json:"entry_count" db:"entry_count"`
	Successful         int        `json:"successful" db:"successful"`
	Failed             int        `json:"failed" db:"failed"`
	Skipped            int        `json:"skipped" db:"skipped"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`

	// Computed fields
	EntryResults []EntryResult `json:"entry_results,omitempty"`
}

// EntryResult represents the result of uploading a single daily entry
type EntryResult struct {
	ID              string     `json:"id" db:"id"`
	RunID           string     `json:"run_id" db:"run_id"`
	Date            string     `json:"date" db:"entry_date"`
	WeightKg        float64    `json:"weight_kg" db:"weight_kg"`
	Outcome         Outcome    `json:"outcome" db:"outcome"`
	Attempts        int        `json:"attempts" db:"attempts"`
	Reauthenticated bool       `json:"reauthenticated" db:"reauthenticated"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	ExecutedAt      *time.Time `json:"executed_at" db:"executed_at"`
	Duration        int64      `json:"duration_ms,omitempty" db:"duration_ms"`
}

// ==================== Workflow Types ====================

// SyncInput represents input for the sync workflow
type SyncInput struct {
	RunID             string       `json:"run_id"`
	Entries           []DailyEntry `json:"entries"`
	AuthenticateFirst bool         `json:"authenticate_first"`
	DisableDirect     bool         `json:"disable_direct"`
	Headless          bool         `json:"headless"`
	DelayMillis       int64        `json:"delay_ms"`
	Timeout           int          `json:"timeout_seconds"`
}

// SyncResult represents the result of a batch, local or durable
type SyncResult struct {
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	Result        BatchResult   `json:"result"`
	EntryResults  []EntryResult `json:"entry_results"`
	Aborted       bool          `json:"aborted"`
	TotalDuration int64         `json:"total_duration_ms"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// SessionHandle identifies a browser session held by a worker
type SessionHandle struct {
	SessionID string `json:"session_id"`
	PageURL   string `json:"page_url"`
}

// SessionInit is the input for opening a browser session
type SessionInit struct {
	Headless      bool `json:"headless"`
	DisableDirect bool `json:"disable_direct"`
}

// UpdateInput is the input for uploading one entry inside a session
type UpdateInput struct {
	SessionID string     `json:"session_id"`
	RunID     string     `json:"run_id"`
	Entry     DailyEntry `json:"entry"`
	Attempt   int        `json:"attempt"`
}

// ==================== API Types ====================

// WeightRequest is the body of a single-day update request
type WeightRequest struct {
	Weight float64 `json:"weight"`
	Date   string  `json:"date,omitempty"`
}

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
