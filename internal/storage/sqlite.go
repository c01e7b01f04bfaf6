// Package storage provides the run journal. It records every rip and the
// outcome of each resource in a SQLite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/masahif/webripper/internal/ripper"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// StatusRunning marks a run that has not finished, or whose process died.
const StatusRunning ripper.Status = "running"

var (
	// ErrRunNotFound is returned when a run id is not in the journal
	ErrRunNotFound = errors.New("run not found")
	// ErrSchemaVersion is returned when opening a journal written by an
	// incompatible version
	ErrSchemaVersion = errors.New("unsupported journal schema version")
)

// timeLayout is used for every stored timestamp so rows sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is a journal row: the run as started plus its summary once finished.
type Run struct {
	ripper.RunRecord
	ripper.RunSummary
}

// SQLiteStorage implements ripper.Journal using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ ripper.Journal = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates the journal at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection; resources are recorded from many goroutines
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	version, err := s.GetMeta("schema_version")
	if err != nil {
		return err
	}
	if version != "" && version != schemaVersion {
		return fmt.Errorf("%w: %s", ErrSchemaVersion, version)
	}
	return s.SetMeta("schema_version", schemaVersion)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// StartRun inserts a run in the running state
func (s *SQLiteStorage) StartRun(run ripper.RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, seed_url, root_path, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SeedURI, run.RootPath, run.Mode.String(), string(StatusRunning), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// RecordResource appends one resource outcome to a run
func (s *SQLiteStorage) RecordResource(runID string, rec ripper.ResourceRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO resources (
			run_id, url, final_url, local_path, content_type, outcome,
			depth, size_bytes, ttfb_ms, error_message, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		rec.URI,
		rec.FinalURI,
		rec.LocalPath,
		nullString(rec.ContentType),
		string(rec.Outcome),
		rec.Depth,
		rec.Bytes,
		rec.TTFB.Milliseconds(),
		nullString(rec.Error),
		formatTime(recordedAt(rec.RecordedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to record resource %s: %w", rec.URI, err)
	}
	return nil
}

// FinishRun stores the summary of a run
func (s *SQLiteStorage) FinishRun(runID string, summary ripper.RunSummary) error {
	result, err := s.db.Exec(`
		UPDATE runs SET
			status = ?,
			finished_at = ?,
			resources = ?,
			downloaded = ?,
			failures = ?,
			error_message = ?
		WHERE id = ?
	`,
		string(summary.Status),
		formatTime(recordedAt(summary.FinishedAt)),
		summary.Resources,
		summary.Downloaded,
		summary.Failures,
		nullString(summary.Error),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SQLiteStorage) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, seed_url, root_path, mode, status, started_at, finished_at,
			resources, downloaded, failures, error_message
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run by id
func (s *SQLiteStorage) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT id, seed_url, root_path, mode, status, started_at, finished_at,
			resources, downloaded, failures, error_message
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListResources returns the resource outcomes of a run in recording order
func (s *SQLiteStorage) ListResources(runID string) ([]ripper.ResourceRecord, error) {
	rows, err := s.db.Query(`
		SELECT url, final_url, local_path, content_type, outcome, depth,
			size_bytes, ttfb_ms, error_message, recorded_at
		FROM resources
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []ripper.ResourceRecord
	for rows.Next() {
		var (
			rec               ripper.ResourceRecord
			contentType, msg  sql.NullString
			outcome, recorded string
			ttfbMillis        int64
		)
		if err := rows.Scan(&rec.URI, &rec.FinalURI, &rec.LocalPath, &contentType, &outcome,
			&rec.Depth, &rec.Bytes, &ttfbMillis, &msg, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		rec.ContentType = contentType.String
		rec.Outcome = ripper.Outcome(outcome)
		rec.TTFB = time.Duration(ttfbMillis) * time.Millisecond
		rec.Error = msg.String
		if rec.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	return recs, nil
}

// OutcomeCounts returns the number of resources per outcome for a run
func (s *SQLiteStorage) OutcomeCounts(runID string) (map[ripper.Outcome]int, error) {
	rows, err := s.db.Query(`SELECT outcome, count FROM run_outcomes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[ripper.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		counts[ripper.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM journal_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO journal_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		mode, status      string
		started           string
		finished, message sql.NullString
	)
	err := row.Scan(&run.ID, &run.SeedURI, &run.RootPath, &mode, &status, &started, &finished,
		&run.Resources, &run.Downloaded, &run.Failures, &message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if run.Mode, err = ripper.ParseMode(mode); err != nil {
		return Run{}, err
	}
	run.Status = ripper.Status(status)
	run.Error = message.String
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func recordedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
