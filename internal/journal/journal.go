// Package journal persists lifecycle events to SQLite for the dashboard's
// activity feed. Agent runtime state itself is never persisted; the journal
// is a history of what happened, not a recovery mechanism.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/steveyegge/sentinel/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	agent      TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	message    TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_agent ON lifecycle_events(agent, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON lifecycle_events(timestamp);
`

// Journal is the SQLite-backed event store
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	// WAL mode: the retention sweep and dashboard reads run concurrently
	// with the subscriber's writes.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores one lifecycle event
func (j *Journal) Append(ctx context.Context, event events.LifecycleEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (id, kind, agent, timestamp, message, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Kind), event.Agent, event.Timestamp, event.Message, string(payload))
	if err != nil {
		return fmt.Errorf("storing event (kind=%s, agent=%s): %w", event.Kind, event.Agent, err)
	}
	return nil
}

// Subscribe attaches the journal to an event bus. Append failures are logged
// and dropped; a full disk must not break event delivery to other
// subscribers or back into the supervisor.
func (j *Journal) Subscribe(bus *events.Bus) func() {
	return bus.Subscribe(func(event events.LifecycleEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.Append(ctx, event); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: journal append failed: %v\n", err)
		}
	})
}

// Recent returns the newest events, most recent first
func (j *Journal) Recent(ctx context.Context, limit int) ([]events.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, agent, timestamp, message, payload
		FROM lifecycle_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByAgent returns the newest events for one agent, most recent first
func (j *Journal) ByAgent(ctx context.Context, agent string, limit int) ([]events.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, agent, timestamp, message, payload
		FROM lifecycle_events
		WHERE agent = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events for agent %q: %w", agent, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Count returns the total number of stored events
func (j *Journal) Count(ctx context.Context) (int, error) {
	var count int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lifecycle_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

func scanEvents(rows *sql.Rows) ([]events.LifecycleEvent, error) {
	var out []events.LifecycleEvent
	for rows.Next() {
		var (
			event   events.LifecycleEvent
			kind    string
			payload string
		)
		if err := rows.Scan(&event.ID, &kind, &event.Agent, &event.Timestamp,
			&event.Message, &payload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		event.Kind = events.EventKind(kind)
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return nil, fmt.Errorf("parsing event payload: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
