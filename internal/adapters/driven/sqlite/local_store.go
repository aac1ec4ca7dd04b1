// Package sqlite keeps device-local markers in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LocalStore = (*LocalStore)(nil)

// LocalStore implements driven.LocalStore on an embedded SQLite database
type LocalStore struct {
	db *sql.DB
}

// Open opens or creates the database at path. Missing parent
// directories are created. ":memory:" gives a private in-memory store.
func Open(ctx context.Context, path string) (*LocalStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local store directory: %w", err)
		}
	}

	// modernc.org/sqlite registers as "sqlite"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// one connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure local store: %w", err)
		}
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS markers (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL,
		updated_at_unixms INTEGER NOT NULL
	);`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	return &LocalStore{db: db}, nil
}

// Get returns the value under key
func (s *LocalStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM markers WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read marker %q: %w", key, err)
	}
	return v, nil
}

// Set stores a value under key
func (s *LocalStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (k, v, updated_at_unixms) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at_unixms = excluded.updated_at_unixms
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write marker %q: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE k = ?`, key); err != nil {
		return fmt.Errorf("failed to delete marker %q: %w", key, err)
	}
	return nil
}

// Close releases the database
func (s *LocalStore) Close() error {
	return s.db.Close()
}
