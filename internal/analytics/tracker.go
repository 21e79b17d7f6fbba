package analytics

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"todosync/backend"
	"todosync/internal/syncer"
	"todosync/internal/utils"
)

// Tracker handles analytics event recording
type Tracker struct {
	db      *sql.DB
	enabled bool
	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewTracker creates a new analytics tracker.
// If enabled is false, tracking is disabled but the database is still created.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:      db,
		enabled: enabled,
	}, nil
}

// Close waits for pending writes and closes the database connection.
func (t *Tracker) Close() error {
	t.pending.Wait()
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// Flush waits until every queued event is written.
func (t *Tracker) Flush() {
	t.pending.Wait()
}

// TrackCommand runs fn and records the outcome when analytics is enabled.
// The error from fn is returned unchanged.
func (t *Tracker) TrackCommand(cmd, subcmd, workspace string, flags []string, fn func() error) error {
	if t == nil || !t.enabled {
		return fn()
	}

	start := time.Now()
	err := fn()

	event := Event{
		Timestamp:  time.Now().Unix(),
		Command:    cmd,
		Subcommand: subcmd,
		Workspace:  workspace,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		ErrorType:  categorizeError(err),
	}
	if len(flags) > 0 {
		flagsJSON, _ := json.Marshal(flags)
		event.Flags = string(flagsJSON)
	}

	// Written in the background so the command returns immediately.
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.logEvent(event)
	}()

	return err
}

func (t *Tracker) logEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(`
		INSERT INTO events (timestamp, command, subcommand, workspace, success, duration_ms, error_type, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.Timestamp, event.Command, nullString(event.Subcommand), nullString(event.Workspace),
		boolToInt(event.Success), event.DurationMs, nullString(event.ErrorType), nullString(event.Flags))
	if err != nil {
		utils.Debugf("[Analytics] failed to record %s: %v", event.Command, err)
	}
}

// Events returns recorded events, newest first, optionally limited to one command.
func (t *Tracker) Events(command string, limit int) ([]Event, error) {
	query := `SELECT id, timestamp, command, subcommand, workspace, success, duration_ms, error_type, flags
		FROM events`
	var args []interface{}
	if command != "" {
		query += " WHERE command = ?"
		args = append(args, command)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var subcommand, workspace, errorType, flags sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Command, &subcommand, &workspace,
			&e.Success, &duration, &errorType, &flags); err != nil {
			return nil, err
		}
		e.Subcommand = subcommand.String
		e.Workspace = workspace.String
		e.DurationMs = duration.Int64
		e.ErrorType = errorType.String
		e.Flags = flags.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		_, _ = t.db.Exec("VACUUM")
	}
	return deleted, nil
}

// categorizeError maps an error to the backend error kind, or to the
// orchestrator condition that stopped the command.
func categorizeError(err error) string {
	if err == nil {
		return ""
	}
	if kind := backend.KindOf(err); kind != backend.KindUnknown {
		return kind.String()
	}
	switch {
	case syncer.IsCancelled(err):
		return "cancelled"
	case errors.Is(err, syncer.ErrNotLinked):
		return "not_linked"
	case errors.Is(err, syncer.ErrNoCredential):
		return "no_credential"
	case errors.Is(err, syncer.ErrNoTasksInFile):
		return "no_tasks"
	default:
		return "unknown"
	}
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
