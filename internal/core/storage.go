package core

import (
	"context"
	"fmt"

	"freshcore/internal/blob"
	"freshcore/internal/infra/persistence/blobstore"
	"freshcore/internal/infra/persistence/memory"
	"freshcore/internal/infra/persistence/postgres"
	"freshcore/internal/infra/persistence/sqlite"
	"freshcore/pkg/domain"
)

// StorageDriver identifies a concrete collection store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBlob     StorageDriver = "blob"     // JSON documents on a blob backend
)

// StorageConfig selects and configures the collection store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	Blob        blob.Config
	BlobPrefix  string
}

// OpenCollectionStore opens the backend named by cfg.Driver, defaulting to
// sqlite. Stores holding connections also implement io.Closer.
func OpenCollectionStore(ctx context.Context, cfg StorageConfig) (domain.CollectionStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		st, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		st, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StorageBlob:
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, err
		}
		st, err := blobstore.NewStore(ctx, blobs, cfg.BlobPrefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
