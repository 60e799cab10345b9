// Package sqlite provides a SQLite-backed implementation of the
// storage.LocalStore interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/divvyhq/divvy/internal/storage"
)

// Ensure SQLiteStore implements storage.LocalStore
var _ storage.LocalStore = (*SQLiteStore)(nil)

// SQLiteStore implements storage.LocalStore using SQLite. Each named
// collection is stored as a single JSON blob row, written through on every
// mutation so a crash never loses acknowledged writes.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked while the sync worker writes through.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored document for the named collection.
func (s *SQLiteStore) Get(ctx context.Context, collection string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM collections WHERE name = ?",
		collection,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %q: %w", collection, err)
	}
	return data, nil
}

// Put overwrites the named collection with data.
func (s *SQLiteStore) Put(ctx context.Context, collection string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put collection %q: %w", collection, err)
	}
	return nil
}

// Delete removes the named collection.
func (s *SQLiteStore) Delete(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection %q: %w", collection, err)
	}
	return nil
}

// Flush removes every collection.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM collections")
	if err != nil {
		return fmt.Errorf("failed to flush collections: %w", err)
	}
	return nil
}
