// Package store persists the title id cache, OAuth token and scrobble
// history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// NotAvailable is cached for titles the search could not resolve.
const NotAvailable = "n/a"

// Store wraps the state database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath. An empty path uses
// the XDG state directory.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve state db path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY between handlers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func DefaultPath() (string, error) {
	return xdg.StateFile(filepath.Join("mpvtrakt", "state.db"))
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS trakt_ids (
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			trakt_id TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, title)
		);`,
		`CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scrobble_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			path TEXT NOT NULL,
			title TEXT NOT NULL,
			progress REAL NOT NULL,
			status_code INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate state schema: %w", err)
		}
	}
	return nil
}

// LookupID returns the cached id for a title, keyed case-insensitively.
func (s *Store) LookupID(ctx context.Context, kind, title string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT trakt_id FROM trakt_ids WHERE kind = ? AND title = ?`, kind, strings.ToLower(title)).
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup id: %w", err)
	}
	return id, true, nil
}

// SaveID caches id (or NotAvailable) for a title.
func (s *Store) SaveID(ctx context.Context, kind, title, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trakt_ids (kind, title, trakt_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, title) DO UPDATE SET trakt_id = excluded.trakt_id, updated_at = excluded.updated_at`,
		kind, strings.ToLower(title), id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save id: %w", err)
	}
	return nil
}

// LoadToken returns the stored token document, or nil when none is stored.
func (s *Store) LoadToken(ctx context.Context) ([]byte, error) {
	var tokenJSON string
	err := s.db.QueryRowContext(ctx, `SELECT token_json FROM tokens WHERE id = 1`).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return []byte(tokenJSON), nil
}

func (s *Store) SaveToken(ctx context.Context, tokenJSON []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, token_json, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET token_json = excluded.token_json, updated_at = excluded.updated_at`,
		string(tokenJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
