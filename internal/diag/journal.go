// Package diag keeps a bounded journal of client-side failures that are not
// shown to the user: audit writes that did not go through, degraded fetches
// that failed for reasons other than missing permissions.
package diag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultMaxEvents is how many events the journal keeps.
const DefaultMaxEvents = 100

const dirPerms = 0o700

const (
	sqlInsertEvent = `INSERT INTO error_events
		(id, message, source, line, col, stack, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlTrimEvents = `DELETE FROM error_events WHERE seq NOT IN
		(SELECT seq FROM error_events ORDER BY seq DESC LIMIT ?)`
	sqlListEvents = `SELECT id, message, source, line, col, stack, occurred_at
		FROM error_events ORDER BY seq DESC`
	sqlClearEvents = `DELETE FROM error_events`
)

// ErrorEvent is one recorded failure.
type ErrorEvent struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Line      int       `json:"line"`
	Column    int       `json:"column"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal stores events in SQLite, keeping only the most recent ones.
// A nil *Journal is valid: it drops everything and lists nothing.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	max     int
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at path. maxEvents
// <= 0 selects DefaultMaxEvents.
func Open(ctx context.Context, path string, maxEvents int, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("diag: creating journal directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("diag: opening journal %s: %w", path, err)
	}

	// Sole-writer pattern: one connection serializes every statement.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("diagnostics journal opened", slog.String("path", path))

	return &Journal{
		db:      db,
		logger:  logger,
		max:     maxEvents,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("diag: closing journal: %w", err)
	}

	return nil
}

// Record stores ev and evicts the oldest events beyond the cap. Missing ID
// and Timestamp are filled in.
func (j *Journal) Record(ctx context.Context, ev ErrorEvent) error {
	if j == nil {
		return nil
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = j.nowFunc()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("diag: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlInsertEvent,
		ev.ID, ev.Message, ev.Source, ev.Line, ev.Column, ev.Stack, ev.Timestamp.UnixNano(),
	); err != nil {
		return fmt.Errorf("diag: inserting event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlTrimEvents, j.max); err != nil {
		return fmt.Errorf("diag: trimming events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("diag: committing event: %w", err)
	}

	return nil
}

// RecordError records err from source with the current stack. Line and
// Column stay zero: callers report through helpers, so a caller line would
// point at the helper rather than the failure. Failures to record are
// logged, not returned.
func (j *Journal) RecordError(ctx context.Context, source string, err error) {
	if j == nil || err == nil {
		return
	}

	ev := ErrorEvent{
		Message: err.Error(),
		Source:  source,
		Stack:   string(debug.Stack()),
	}

	if recErr := j.Record(ctx, ev); recErr != nil {
		j.logger.Warn("dropping diagnostic event",
			slog.String("source", source),
			slog.String("error", recErr.Error()),
		)
	}
}

// List returns the stored events, newest first.
func (j *Journal) List(ctx context.Context) ([]ErrorEvent, error) {
	if j == nil {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, sqlListEvents)
	if err != nil {
		return nil, fmt.Errorf("diag: listing events: %w", err)
	}
	defer rows.Close()

	var events []ErrorEvent

	for rows.Next() {
		var (
			ev    ErrorEvent
			nanos int64
		)

		if err := rows.Scan(&ev.ID, &ev.Message, &ev.Source, &ev.Line, &ev.Column, &ev.Stack, &nanos); err != nil {
			return nil, fmt.Errorf("diag: scanning event: %w", err)
		}

		ev.Timestamp = time.Unix(0, nanos).UTC()
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("diag: iterating events: %w", err)
	}

	return events, nil
}

// Clear deletes every event.
func (j *Journal) Clear(ctx context.Context) error {
	if j == nil {
		return nil
	}

	if _, err := j.db.ExecContext(ctx, sqlClearEvents); err != nil {
		return fmt.Errorf("diag: clearing events: %w", err)
	}

	return nil
}

// ErrNoJournal is returned by callers that need a journal but were built
// without one.
var ErrNoJournal = errors.New("diag: no journal configured")
