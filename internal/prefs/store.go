package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("preference not found")

// Well-known preference keys.
const (
	KeyEnabledProjects = "projects.enabled"
	KeyWatchAll        = "watch.all"
	KeyWatchedItems    = "watch.items"
)

// Store is the SQLite-backed preference store.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened preferences database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored value for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading preference %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting preference %q: %w", key, err)
	}
	return nil
}

// GetStrings reads a list-valued preference stored as a comma-joined
// string. An absent key yields a nil slice and no error.
func (s *Store) GetStrings(key string) ([]string, error) {
	value, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	return strings.Split(value, ","), nil
}

// SetStrings stores a list-valued preference as a comma-joined string.
func (s *Store) SetStrings(key string, values []string) error {
	return s.Set(key, strings.Join(values, ","))
}
