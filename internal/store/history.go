package store

import (
	"context"
	"fmt"
	"time"
)

// HistoryEntry is one scrobble attempt that reached the service.
type HistoryEntry struct {
	SessionID  string
	Action     string
	Path       string
	Title      string
	Progress   float64
	StatusCode int
	Error      string
	At         time.Time
}

func (s *Store) AddHistory(ctx context.Context, e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrobble_history (session_id, action, path, title, progress, status_code, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Action, e.Path, e.Title, e.Progress, e.StatusCode, e.Error, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, action, path, title, progress, status_code, error, created_at
		 FROM scrobble_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var at int64
		if err := rows.Scan(&e.SessionID, &e.Action, &e.Path, &e.Title, &e.Progress, &e.StatusCode, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.At = time.UnixMilli(at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
