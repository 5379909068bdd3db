package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dev/bravebird/weightsync-go/pkg/models"

	"github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schemaSQL string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection. Timestamps are always scanned
// into time.Time, whatever the DSN says about parseTime.
func New(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.ParseTime = true

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// splitStatements splits a schema into single statements, since the driver
// rejects multi-statement queries by default.
func splitStatements(schema string) []string {
	var out []string
	for _, part := range strings.Split(schema, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// ==================== Sync Runs ====================

const runColumns = `id, source, temporal_workflow_id, temporal_run_id, status, entry_count,
	successful, failed, skipped, started_at, completed_at, COALESCE(error_message, '')`

// CreateSyncRun creates a new sync run
func (db *DB) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, source, temporal_workflow_id, temporal_run_id, status, entry_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if run.StartedAt == nil {
		now := time.Now()
		run.StartedAt = &now
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.Source,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.Status,
		run.EntryCount,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetSyncRun retrieves a sync run by ID. A missing run is nil with no error.
func (db *DB) GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ?`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListSyncRuns retrieves the most recent runs first
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.SyncRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SetTemporalIDs links a run to its workflow execution
func (db *DB) SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	query := `UPDATE sync_runs SET temporal_workflow_id = ?, temporal_run_id = ? WHERE id = ?`
	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, id)
	return err
}

// UpdateSyncRunStatus updates the status of a sync run
func (db *DB) UpdateSyncRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE sync_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status.Terminal(), id)
	return err
}

// CompleteSyncRun stores the final counts and status of a run
func (db *DB) CompleteSyncRun(ctx context.Context, id string, result models.SyncResult) error {
	query := `
		UPDATE sync_runs
		SET status = ?, successful = ?, failed = ?, skipped = ?,
		    error_message = ?, completed_at = NOW()
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query,
		result.Status,
		result.Result.Successful,
		result.Result.Failed,
		result.Result.Skipped,
		result.ErrorMessage,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.SyncRun, error) {
	var run models.SyncRun
	err := row.Scan(
		&run.ID,
		&run.Source,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&run.EntryCount,
		&run.Successful,
		&run.Failed,
		&run.Skipped,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ==================== Entry Results ====================

// RecordEntry stores one entry result. Recording the same result ID again
// overwrites it, so an activity retry does not duplicate rows.
func (db *DB) RecordEntry(ctx context.Context, runID string, result models.EntryResult) error {
	query := `
		INSERT INTO entry_results (id, run_id, entry_date, weight_kg, outcome, attempts,
		                           reauthenticated, error_message, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		    outcome = VALUES(outcome), attempts = VALUES(attempts),
		    reauthenticated = VALUES(reauthenticated), error_message = VALUES(error_message),
		    executed_at = VALUES(executed_at), duration_ms = VALUES(duration_ms)
	`

	_, err := db.conn.ExecContext(ctx, query,
		result.ID,
		runID,
		result.Date,
		result.WeightKg,
		result.Outcome,
		result.Attempts,
		result.Reauthenticated,
		result.ErrorMessage,
		result.ExecutedAt,
		result.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

// GetEntryResults retrieves entry results for a run, oldest date first
func (db *DB) GetEntryResults(ctx context.Context, runID string) ([]models.EntryResult, error) {
	query := `
		SELECT id, run_id, entry_date, weight_kg, outcome, attempts, reauthenticated,
		       COALESCE(error_message, ''), executed_at, duration_ms
		FROM entry_results
		WHERE run_id = ?
		ORDER BY entry_date
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := make([]models.EntryResult, 0)
	for rows.Next() {
		var result models.EntryResult
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.Date,
			&result.WeightKg,
			&result.Outcome,
			&result.Attempts,
			&result.Reauthenticated,
			&result.ErrorMessage,
			&result.ExecutedAt,
			&result.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
