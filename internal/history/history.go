// Package history records monitor iterations in an embedded SQLite database.
//
// Every iteration that reaches the Syncing state stores one row: which head
// it processed, against which watermark, how it ended and which files were
// auto-translated or flagged. `wikibot history` reads it back, and the
// status feed publishes each new row.
//
// The database runs with WAL enabled so the CLI can read while the monitor
// writes.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Outcome is how an iteration ended.
type Outcome string

const (
	// Synced means the range built and was synchronized.
	Synced Outcome = "synced"
	// BuildFailed means the pushed head did not build.
	BuildFailed Outcome = "build-failed"
	// Inconsistent means the tables of contents disagreed.
	Inconsistent Outcome = "inconsistent"
	// Failed means a repository or other iteration error.
	Failed Outcome = "failed"
	// Fatal means the worker stopped after this iteration.
	Fatal Outcome = "fatal"
)

// Run is one monitor iteration.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Head       string    `json:"head"`
	// Watermark is the last good commit the range started from.
	Watermark               string   `json:"watermark"`
	Author                  string   `json:"author"`
	Outcome                 Outcome  `json:"outcome"`
	AutoTranslated          []string `json:"auto_translated"`
	ManualTranslationNeeded []string `json:"manual_translation_needed"`
	BotCommit               string   `json:"bot_commit,omitempty"`
	Error                   string   `json:"error,omitempty"`
}

// Duration is the wall time of the iteration.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRunID returns a time-ordered run id.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// timeFormat is fixed width so stored times sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("run not found")

// DB wraps the history database.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path and ensures the schema.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables. It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		head TEXT NOT NULL,
		watermark TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		auto_translated TEXT NOT NULL DEFAULT '[]',   -- JSON array
		manual_translation TEXT NOT NULL DEFAULT '[]', -- JSON array
		bot_commit TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_head ON runs(head);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Record inserts or replaces a run. An empty ID is filled in.
func (db *DB) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.Head == "" {
		return errors.New("run head is required")
	}
	if run.Outcome == "" {
		return errors.New("run outcome is required")
	}

	auto, err := json.Marshal(nonNil(run.AutoTranslated))
	if err != nil {
		return fmt.Errorf("failed to marshal auto-translated list: %w", err)
	}
	manual, err := json.Marshal(nonNil(run.ManualTranslationNeeded))
	if err != nil {
		return fmt.Errorf("failed to marshal manual list: %w", err)
	}

	query := `
	INSERT INTO runs (
		id, started_at, finished_at, head, watermark, author, outcome,
		auto_translated, manual_translation, bot_commit, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		outcome = excluded.outcome,
		auto_translated = excluded.auto_translated,
		manual_translation = excluded.manual_translation,
		bot_commit = excluded.bot_commit,
		error = excluded.error
	`

	_, err = db.conn.ExecContext(ctx, query,
		run.ID,
		run.StartedAt.UTC().Format(timeFormat),
		timeToNullString(run.FinishedAt),
		run.Head,
		run.Watermark,
		run.Author,
		string(run.Outcome),
		string(auto),
		string(manual),
		run.BotCommit,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, started_at, finished_at, head, watermark, author, outcome,
		auto_translated, manual_translation, bot_commit, error
	FROM runs`

// Get returns one run.
func (db *DB) Get(ctx context.Context, id string) (*Run, error) {
	rows, err := db.conn.QueryContext(ctx, selectRuns+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &runs[0], nil
}

// Recent returns up to limit runs, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRuns(rows)
}

// Since returns the runs started at or after t, newest first.
func (db *DB) Since(ctx context.Context, t time.Time) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx, selectRuns+` WHERE started_at >= ? ORDER BY started_at DESC`,
		t.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRuns(rows)
}

// Count returns the number of runs per outcome.
func (db *DB) Count(ctx context.Context) (map[Outcome]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run          Run
			started      string
			finished     sql.NullString
			outcome      string
			auto, manual string
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Head, &run.Watermark, &run.Author,
			&outcome, &auto, &manual, &run.BotCommit, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var err error
		if run.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if finished.Valid {
			if run.FinishedAt, err = time.Parse(timeFormat, finished.String); err != nil {
				return nil, fmt.Errorf("failed to parse finished_at: %w", err)
			}
		}
		run.Outcome = Outcome(outcome)
		if err := json.Unmarshal([]byte(auto), &run.AutoTranslated); err != nil {
			return nil, fmt.Errorf("failed to unmarshal auto-translated list: %w", err)
		}
		if err := json.Unmarshal([]byte(manual), &run.ManualTranslationNeeded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manual list: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// timeToNullString stores a zero time as NULL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}
