// Package audit persists a durable record of every delivered event and
// serves the query API over that record. Rows are keyed by event id, so
// replaying a delivery cannot produce a second row.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pbaity/herald/pkg/models"
)

const (
	// DefaultQueryLimit applies when a query names no limit.
	DefaultQueryLimit = 50
	// MaxQueryLimit caps a single page of results.
	MaxQueryLimit = 200
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT NOT NULL UNIQUE,
	event_type  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	event_time  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_log(task_id);
CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_log(event_type);
`

// Entry is one recorded event.
type Entry struct {
	RowID      int64     `json:"row_id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    string    `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Query filters and pages the audit log. Zero-value fields match
// everything.
type Query struct {
	UserID    string
	TaskID    string
	EventType string
	Limit     int
	Offset    int
}

// Store is the sqlite-backed audit log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %q: %w", path, err)
	}
	// sqlite allows one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent deliveries.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one envelope into the log and returns its row id. A
// second insert for the same event id is a no-op that returns the
// existing row's id.
func (s *Store) Record(ctx context.Context, env models.EventEnvelope, taskID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, event_type, user_id, task_id, event_time, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		env.EventID, string(env.EventType), env.UserID, taskID,
		env.Timestamp.UTC().Format(time.RFC3339Nano),
		string(env.Payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record event %s: %w", env.EventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		return res.LastInsertId()
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM audit_log WHERE event_id = ?`, env.EventID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up existing row for event %s: %w", env.EventID, err)
	}
	return id, nil
}

// List returns entries matching q, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, q.TaskID)
	}
	if q.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, q.EventType)
	}

	query := `SELECT id, event_id, event_type, user_id, task_id, event_time, payload, recorded_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                     Entry
			eventTime, recordedAt string
		)
		if err := rows.Scan(&e.RowID, &e.EventID, &e.EventType, &e.UserID, &e.TaskID, &eventTime, &e.Payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, eventTime); err != nil {
			return nil, fmt.Errorf("corrupt event_time on row %d: %w", e.RowID, err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("corrupt recorded_at on row %d: %w", e.RowID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
