// Package journal records capture sessions in a SQLite database: one row per
// ring session, refreshed on every stats report and closed when the stream
// ends.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	instance_id   TEXT NOT NULL,
	stream        TEXT NOT NULL,
	layout        TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	ended_at      INTEGER,
	status        TEXT NOT NULL DEFAULT 'running',
	error         TEXT,
	bytes_read    INTEGER NOT NULL DEFAULT 0,
	bytes_lost    INTEGER NOT NULL DEFAULT 0,
	events        INTEGER NOT NULL DEFAULT 0,
	malformed     INTEGER NOT NULL DEFAULT 0,
	truncated     INTEGER NOT NULL DEFAULT 0,
	wraps         INTEGER NOT NULL DEFAULT 0,
	resets        INTEGER NOT NULL DEFAULT 0,
	out_of_bounds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_stream ON sessions(stream, started_at);
`

const upsert = `
INSERT INTO sessions (
	session_id, instance_id, stream, layout, started_at, updated_at,
	bytes_read, bytes_lost, events, malformed, truncated, wraps, resets, out_of_bounds
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	updated_at    = excluded.updated_at,
	bytes_read    = excluded.bytes_read,
	bytes_lost    = excluded.bytes_lost,
	events        = excluded.events,
	malformed     = excluded.malformed,
	truncated     = excluded.truncated,
	wraps         = excluded.wraps,
	resets        = excluded.resets,
	out_of_bounds = excluded.out_of_bounds
`

// Session is one journal row.
type Session struct {
	ID          string
	InstanceID  string
	Stream      string
	Layout      string
	StartedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     time.Time // zero while running
	Status      string    // running, completed, failed
	Error       string
	BytesRead   uint64
	BytesLost   uint64
	Events      uint64
	Malformed   uint64
	Truncated   uint64
	Wraps       uint64
	Resets      uint64
	OutOfBounds uint64
}

// Journal writes session rows. Safe for concurrent use.
type Journal struct {
	db         *sql.DB
	instanceID string
	now        func() time.Time

	mu     sync.Mutex
	errors uint64
}

// Open creates (or reuses) the database at path.
func Open(path, instanceID string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=1000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	slog.Info("journal: opened", "path", path)
	return &Journal{db: db, instanceID: instanceID, now: time.Now}, nil
}

// Record inserts or refreshes the row for the snapshot's session.
func (j *Journal) Record(ctx context.Context, stats pipeline.StreamStats) error {
	if stats.Ring.SessionID == "" {
		return nil // ring never started
	}

	now := j.now()
	started := now.Add(-stats.Ring.Uptime)
	_, err := j.db.ExecContext(ctx, upsert,
		stats.Ring.SessionID, j.instanceID, stats.Name, stats.Layout,
		started.UnixMilli(), now.UnixMilli(),
		int64(stats.Ring.BytesRead), int64(stats.Ring.BytesLost), int64(stats.Events),
		int64(stats.Decoder.Malformed), int64(stats.Decoder.Truncated),
		int64(stats.Decoder.Wraps), int64(stats.Decoder.Resets), int64(stats.OutOfBounds),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", stats.Ring.SessionID, err)
	}
	return nil
}

// End records the final snapshot and marks the session completed, or failed
// when runErr is non-nil.
func (j *Journal) End(ctx context.Context, stats pipeline.StreamStats, runErr error) error {
	if err := j.Record(ctx, stats); err != nil {
		return err
	}
	if stats.Ring.SessionID == "" {
		return nil
	}

	status, msg := "completed", sql.NullString{}
	if runErr != nil {
		status = "failed"
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, status = ?, error = ? WHERE session_id = ?`,
		j.now().UnixMilli(), status, msg, stats.Ring.SessionID,
	)
	if err != nil {
		return fmt.Errorf("journal: end %s: %w", stats.Ring.SessionID, err)
	}

	slog.Info("journal: session ended",
		"stream", stats.Name,
		"session_id", stats.Ring.SessionID,
		"status", status,
		"events", stats.Events,
	)
	return nil
}

// Sink adapts Record to the pipeline's periodic stats report.
func (j *Journal) Sink() pipeline.StatsSink {
	return func(stats pipeline.StreamStats) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.Record(ctx, stats); err != nil {
			j.mu.Lock()
			j.errors++
			j.mu.Unlock()
			slog.Warn("journal: record failed", "stream", stats.Name, "error", err)
		}
	}
}

// Sessions lists a stream's sessions, newest first. An empty stream lists
// every session.
func (j *Journal) Sessions(ctx context.Context, stream string) ([]Session, error) {
	query := `
		SELECT session_id, instance_id, stream, layout, started_at, updated_at,
		       ended_at, status, error, bytes_read, bytes_lost, events,
		       malformed, truncated, wraps, resets, out_of_bounds
		FROM sessions`
	var args []any
	if stream != "" {
		query += ` WHERE stream = ?`
		args = append(args, stream)
	}
	query += ` ORDER BY started_at DESC, session_id`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s                 Session
			started, updated  int64
			ended             sql.NullInt64
			errMsg            sql.NullString
			read, lost, evts  int64
			malformed, trunc  int64
			wraps, resets, oo int64
		)
		if err := rows.Scan(&s.ID, &s.InstanceID, &s.Stream, &s.Layout, &started, &updated,
			&ended, &s.Status, &errMsg, &read, &lost, &evts,
			&malformed, &trunc, &wraps, &resets, &oo); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}
		s.StartedAt = time.UnixMilli(started)
		s.UpdatedAt = time.UnixMilli(updated)
		if ended.Valid {
			s.EndedAt = time.UnixMilli(ended.Int64)
		}
		s.Error = errMsg.String
		s.BytesRead, s.BytesLost, s.Events = uint64(read), uint64(lost), uint64(evts)
		s.Malformed, s.Truncated = uint64(malformed), uint64(trunc)
		s.Wraps, s.Resets, s.OutOfBounds = uint64(wraps), uint64(resets), uint64(oo)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Errors returns how many sink writes failed.
func (j *Journal) Errors() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errors
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
