// Package prefs stores small ephemeral UI preferences, such as the last
// active view. Backed by sqlite when available; when the database cannot be
// opened the store falls back to process memory so the UI keeps working.
package prefs

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is a tiny key-value preference store.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger

	mu       sync.Mutex
	fallback map[string]string
}

// Open opens (or creates) the preference database at path. On failure a
// memory-only store is returned instead of an error: preferences are not
// worth blocking startup for.
func Open(path string, logger *zerolog.Logger) *Store {
	s := &Store{logger: logger, fallback: make(map[string]string)}

	db, err := sql.Open("sqlite3", path)
	if err == nil {
		_, err = db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	}
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("preference storage unavailable, using memory fallback")
		return s
	}
	s.db = db
	return s
}

// Get returns the stored value for key, or "" when unset.
func (s *Store) Get(key string) (string, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.fallback[key], nil
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key.
func (s *Store) Set(key, value string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fallback[key] = value
		return nil
	}

	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}

// Close releases the database, if one is open.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
