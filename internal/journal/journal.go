// Package journal persists interaction lifecycle events to sqlite. It is
// observability only: nothing reads it back to drive behavior, and losing it
// never affects an interaction.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	_ "modernc.org/sqlite"
)

type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

func New(path string, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL mode plus a busy timeout so writers retry instead of immediately
	// returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	j := &Journal{db: db, log: log}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS interaction_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			interaction_id  TEXT NOT NULL,
			state           TEXT NOT NULL,
			command         TEXT NOT NULL,
			detail          TEXT,
			created_at      DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_interaction ON interaction_events(interaction_id, created_at)`,
	}
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// InteractionEvent implements broker.EventSink. Journal failures are logged,
// never propagated: the event path must not disturb the interaction.
func (j *Journal) InteractionEvent(ev broker.Event) {
	_, err := j.db.Exec(`
		INSERT INTO interaction_events (interaction_id, state, command, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.InteractionID, ev.State, ev.Command, ev.Detail, ev.Time.UTC())
	if err != nil {
		j.log.Error("journal write failed", "interaction", ev.InteractionID, "error", err)
	}
}

type Entry struct {
	ID            int64     `json:"id"`
	InteractionID string    `json:"interactionId"`
	State         string    `json:"state"`
	Command       string    `json:"command"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Recent returns the newest events first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, interaction_id, state, command, detail, created_at
		FROM interaction_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.InteractionID, &e.State, &e.Command, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// History returns every event of one interaction in order.
func (j *Journal) History(interactionID string) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, interaction_id, state, command, detail, created_at
		FROM interaction_events WHERE interaction_id = ? ORDER BY id`, interactionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.InteractionID, &e.State, &e.Command, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
