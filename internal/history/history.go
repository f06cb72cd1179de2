// Package history keeps an append-only SQLite log of every label write, so a
// reviewer's decisions can be audited after the CSV has been overwritten.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"labeler/internal/domain"
)

type Source string

const (
	SourceToggle Source = "toggle"
	SourceAuto   Source = "auto_none"
)

type Event struct {
	ID        int64
	SessionID string
	Reviewer  string
	Cluster   string
	CallID    string
	Labels    []string
	Source    Source
	Saved     bool
	CreatedAt time.Time
}

// Recorder is what the review session needs from the history log.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards events when no history database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type Store struct {
	db *sql.DB
}

func NewSessionID() string {
	return uuid.New().String()
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS label_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL,
		reviewer    TEXT NOT NULL,
		cluster     TEXT DEFAULT '',
		call_id     TEXT NOT NULL,
		labels      TEXT DEFAULT '',
		source      TEXT NOT NULL,
		saved       INTEGER NOT NULL DEFAULT 1,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_label_events_reviewer ON label_events(reviewer);
	CREATE INDEX IF NOT EXISTS idx_label_events_call ON label_events(call_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO label_events (session_id, reviewer, cluster, call_id, labels, source, saved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Reviewer, ev.Cluster, ev.CallID, strings.Join(ev.Labels, ","),
		string(ev.Source), ev.Saved, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert label event: %w", err)
	}
	return nil
}

// Events returns a reviewer's events for one call, oldest first.
func (s *Store) Events(ctx context.Context, reviewer, callID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, reviewer, cluster, call_id, labels, source, saved, created_at
		 FROM label_events WHERE reviewer = ? AND call_id = ? ORDER BY created_at, id`,
		reviewer, callID,
	)
	if err != nil {
		return nil, fmt.Errorf("query label events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var labels, source string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Reviewer, &ev.Cluster, &ev.CallID,
			&labels, &source, &ev.Saved, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label event: %w", err)
		}
		if labels != "" {
			ev.Labels = strings.Split(labels, ",")
		}
		ev.Source = Source(source)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountBySource tallies a reviewer's events per source.
func (s *Store) CountBySource(ctx context.Context, reviewer string) (map[Source]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM label_events WHERE reviewer = ? GROUP BY source`, reviewer)
	if err != nil {
		return nil, fmt.Errorf("count label events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Source]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan label event count: %w", err)
		}
		counts[Source(source)] = n
	}
	return counts, rows.Err()
}

// EventFor builds an event from a record after a write.
func EventFor(sessionID, reviewer, cluster, callID string, rec domain.LabelRecord, source Source, saved bool) Event {
	return Event{
		SessionID: sessionID,
		Reviewer:  reviewer,
		Cluster:   cluster,
		CallID:    callID,
		Labels:    rec.Active(),
		Source:    source,
		Saved:     saved,
	}
}
