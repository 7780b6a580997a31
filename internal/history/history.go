// Package history keeps a local SQLite record of backup runs for the status
// command and the daemon health summary. The database is advisory: losing it
// loses nothing the remote ledger cannot answer.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old databases must be deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run triggers.
const (
	TriggerCLI       = "cli"
	TriggerDaemon    = "daemon"
	TriggerScheduled = "scheduled"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Run is one recorded backup attempt.
type Run struct {
	ID          string
	Profile     string
	Trigger     string
	Status      string
	BackupID    string
	FileCount   int
	ArchiveSize int64
	Duration    time.Duration
	Error       string
	StartedAt   time.Time
}

// Store persists runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// RecordRun inserts a completed run. A missing ID is filled with a fresh
// UUID; a missing start time defaults to now. The stored run is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (id, profile, run_trigger, status, backup_id, file_count, archive_size, duration_seconds, error, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Profile, run.Trigger, run.Status, run.BackupID,
			run.FileCount, run.ArchiveSize, run.Duration.Seconds(), run.Error,
			run.StartedAt.UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

const runColumns = "id, profile, run_trigger, status, backup_id, file_count, archive_size, duration_seconds, error, started_at"

func scanRun(scanner interface{ Scan(...any) error }) (Run, error) {
	var run Run
	var seconds float64
	var startedAt string
	err := scanner.Scan(&run.ID, &run.Profile, &run.Trigger, &run.Status, &run.BackupID,
		&run.FileCount, &run.ArchiveSize, &seconds, &run.Error, &startedAt)
	if err != nil {
		return Run{}, err
	}
	run.Duration = time.Duration(seconds * float64(time.Second))
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	return run, nil
}

// Recent returns the newest runs, most recent first. A profile filter of ""
// matches all profiles.
func (s *Store) Recent(ctx context.Context, profile string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + runColumns + " FROM runs"
	args := []any{}
	if profile != "" {
		query += " WHERE profile = ?"
		args = append(args, profile)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run for the profile, or false when the
// profile has never run.
func (s *Store) LastRun(ctx context.Context, profile string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE profile = ? ORDER BY started_at DESC, id LIMIT 1", profile)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("query last run: %w", err)
	}
	return run, true, nil
}

// Summary aggregates run outcomes.
type Summary struct {
	Total     int
	Successes int
	Failures  int
}

// Summarize counts run outcomes for the profile since the given time. An
// empty profile matches all profiles.
func (s *Store) Summarize(ctx context.Context, profile string, since time.Time) (Summary, error) {
	query := `
		SELECT
			COUNT(1),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM runs WHERE started_at >= ?`
	args := []any{StatusSuccess, StatusFailure, since.UTC().Format(time.RFC3339)}
	if profile != "" {
		query += " AND profile = ?"
		args = append(args, profile)
	}
	var summary Summary
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&summary.Total, &summary.Successes, &summary.Failures)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize runs: %w", err)
	}
	return summary, nil
}

// IntegrityCheck runs PRAGMA integrity_check and reports whether the
// database is healthy.
func (s *Store) IntegrityCheck(ctx context.Context) (bool, error) {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return false, fmt.Errorf("integrity check: %w", err)
	}
	return result == "ok", nil
}
