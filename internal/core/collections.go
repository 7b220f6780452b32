package core

import (
	"context"
	"errors"
	"fmt"

	"freshcore/pkg/domain"
)

// loadCollection reads name and decodes every record into T. Undecodable
// records surface as ErrCollectionCorrupt wrapped in a StoreError.
func loadCollection[T any](ctx context.Context, store domain.CollectionStore, name domain.Collection) ([]T, int64, error) {
	snap, err := store.Read(ctx, name)
	if err != nil {
		return nil, 0, asStoreError("read", name, err)
	}
	items, err := domain.DecodeRecords[T](snap)
	if err != nil {
		return nil, 0, &domain.StoreError{Op: "decode", Collection: name, Err: err}
	}
	return items, snap.Version, nil
}

// saveCollection replaces name with items, guarded by version.
func saveCollection[T any](ctx context.Context, store domain.CollectionStore, name domain.Collection, items []T, version int64) error {
	records, err := domain.EncodeRecords(items)
	if err != nil {
		return &domain.StoreError{Op: "encode", Collection: name, Err: fmt.Errorf("%w: %v", domain.ErrStoreIO, err)}
	}
	if _, err := store.Write(ctx, name, records, version); err != nil {
		return asStoreError("write", name, err)
	}
	return nil
}

// appendEvent is the second phase of every two-phase write: it re-reads the
// event collection and appends event to it.
func appendEvent(ctx context.Context, store domain.CollectionStore, event domain.BatchEvent) error {
	events, version, err := loadCollection[domain.BatchEvent](ctx, store, domain.CollectionBatchEvents)
	if err != nil {
		return err
	}
	return saveCollection(ctx, store, domain.CollectionBatchEvents, append(events, event), version)
}

// asStoreError keeps store-reported errors unchanged and classifies anything
// else as an IO failure so callers always see a StoreFailure.
func asStoreError(op string, name domain.Collection, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	if domain.KindOf(err) == domain.KindUnknown {
		err = fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	return &domain.StoreError{Op: op, Collection: name, Err: err}
}
