// Package sqlite persists collections in an embedded SQLite database, one row
// per collection holding the JSON array document and its version.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"freshcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.CollectionStore = (*Store)(nil)

// Store is a SQLite-backed collection store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and ensures the logical
// collections exist.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "freshcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		version INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create collections table: %w", err)
	}
	for _, name := range domain.Collections {
		if _, err := db.Exec(`INSERT INTO collections(name,payload,version) VALUES(?,?,0) ON CONFLICT(name) DO NOTHING`, string(name), []byte("[]")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Read loads the named collection.
func (s *Store) Read(ctx context.Context, name domain.Collection) (domain.Snapshot, error) {
	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, version FROM collections WHERE name = ?`, string(name)).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: domain.ErrCollectionNotFound}
	}
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	}
	records, err := domain.SplitPayload(payload)
	if err != nil {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: err}
	}
	return domain.Snapshot{Records: records, Version: version}, nil
}

// Write replaces the named collection when its stored version equals expectedVersion.
func (s *Store) Write(ctx context.Context, name domain.Collection, records []json.RawMessage, expectedVersion int64) (int64, error) {
	payload, err := domain.JoinPayload(records)
	if err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: encode payload: %v", domain.ErrStoreIO, err)}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE collections SET payload = ?, version = version + 1 WHERE name = ? AND version = ?`, payload, string(name), expectedVersion)
	if err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	}
	if n == 1 {
		return expectedVersion + 1, nil
	}
	return 0, s.writeMiss(ctx, name, expectedVersion)
}

// writeMiss explains why a compare-and-swap update touched no row.
func (s *Store) writeMiss(ctx context.Context, name domain.Collection, expectedVersion int64) error {
	var current int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM collections WHERE name = ?`, string(name)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &domain.StoreError{Op: "write", Collection: name, Err: domain.ErrCollectionNotFound}
	case err != nil:
		return &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	default:
		return &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: expected version %d, stored %d", domain.ErrVersionConflict, expectedVersion, current)}
	}
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
