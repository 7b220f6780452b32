// Package postgres provides a Postgres-backed collection store. Each logical
// collection is one row of the collections table holding a JSONB array and a
// version used for compare-and-swap writes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"freshcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.CollectionStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/freshcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		version BIGINT NOT NULL
	)`
	ensureCollectionSQL = `INSERT INTO collections(name,payload,version) VALUES($1,$2,0) ON CONFLICT(name) DO NOTHING`
	selectCollectionSQL = `SELECT payload, version FROM collections WHERE name = $1`
	selectVersionSQL    = `SELECT version FROM collections WHERE name = $1`
	updateCollectionSQL = `UPDATE collections SET payload = $1, version = version + 1 WHERE name = $2 AND version = $3`
)

// Store persists collections to Postgres.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the collections table and the logical collections exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure collections table: %w", err)
	}
	for _, name := range domain.Collections {
		if _, err := db.ExecContext(ctx, ensureCollectionSQL, string(name), []byte("[]")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return &Store{db: db}, nil
}

// Read loads the named collection.
func (s *Store) Read(ctx context.Context, name domain.Collection) (domain.Snapshot, error) {
	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, selectCollectionSQL, string(name)).Scan(&payload, &version)
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
	res, err := s.db.ExecContext(ctx, updateCollectionSQL, payload, string(name), expectedVersion)
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
	var current int64
	err = s.db.QueryRowContext(ctx, selectVersionSQL, string(name)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: domain.ErrCollectionNotFound}
	case err != nil:
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	default:
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: fmt.Errorf("%w: expected version %d, stored %d", domain.ErrVersionConflict, expectedVersion, current)}
	}
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
