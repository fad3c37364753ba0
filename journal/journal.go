// Package journal keeps an audit trail of every status payload the logger
// received, whether it became a contact or was rejected, in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome is what happened to a payload.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Warned    Outcome = "warning"
	Rejected  Outcome = "rejected"
	Replayed  Outcome = "replayed"
	Ignored   Outcome = "ignored"
	Duplicate Outcome = "duplicate"
)

var errClosed = errors.New("journal: closed")

// Entry is one journaled payload.
type Entry struct {
	ID         string
	Source     string
	ReceivedAt time.Time
	Outcome    Outcome
	Call       string
	Grid       string
	Band       string
	Detail     string
	Payload    string
}

// Journal appends entries to a SQLite table.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal at path. An existing file that fails
// an integrity check is moved aside and a fresh one is started.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: ensure dir: %w", err)
	}
	if err := checkOrQuarantine(path, 2*time.Second); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS ingest_log (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    received_at INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    call TEXT,
    grid TEXT,
    band TEXT,
    detail TEXT,
    payload TEXT
);
CREATE INDEX IF NOT EXISTS ingest_log_received ON ingest_log(received_at);`
	if _, err := db.Exec("pragma busy_timeout=2000"); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record stores e and returns its ID. A zero ReceivedAt is stamped with the
// current time.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if j == nil || j.db == nil {
		return "", errClosed
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO ingest_log (id, source, received_at, outcome, call, grid, band, detail, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.ReceivedAt.UTC().UnixMilli(), string(e.Outcome),
		e.Call, e.Grid, e.Band, e.Detail, e.Payload)
	if err != nil {
		return "", fmt.Errorf("journal: insert: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, errClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, source, received_at, outcome, call, grid, band, detail, payload
FROM ingest_log ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			ms      int64
			outcome string
		)
		if err := rows.Scan(&e.ID, &e.Source, &ms, &outcome, &e.Call, &e.Grid, &e.Band, &e.Detail, &e.Payload); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.ReceivedAt = time.UnixMilli(ms).UTC()
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per outcome.
func (j *Journal) Counts(ctx context.Context) (map[Outcome]int, error) {
	if j == nil || j.db == nil {
		return nil, errClosed
	}
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM ingest_log GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal: count: %w", err)
	}
	defer rows.Close()
	out := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out[Outcome(outcome)] = n
	}
	return out, rows.Err()
}
