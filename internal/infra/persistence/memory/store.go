// Package memory provides an in-memory collection store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"freshcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.CollectionStore = (*Store)(nil)

type collection struct {
	records []json.RawMessage
	version int64
}

// Store keeps every collection in process memory. Records are deep-copied on
// the way in and out so callers never share backing arrays with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[domain.Collection]collection
}

// NewStore returns a store holding the logical collections, all empty at version 0.
func NewStore() *Store {
	s := &Store{collections: make(map[domain.Collection]collection, len(domain.Collections))}
	for _, name := range domain.Collections {
		s.collections[name] = collection{records: []json.RawMessage{}}
	}
	return s
}

// Read returns a copy of the named collection.
func (s *Store) Read(_ context.Context, name domain.Collection) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.Snapshot{}, &domain.StoreError{Op: "read", Collection: name, Err: domain.ErrCollectionNotFound}
	}
	return domain.Snapshot{Records: cloneRecords(c.records), Version: c.version}, nil
}

// Write replaces the named collection when expectedVersion matches.
func (s *Store) Write(_ context.Context, name domain.Collection, records []json.RawMessage, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, &domain.StoreError{Op: "write", Collection: name, Err: domain.ErrCollectionNotFound}
	}
	if c.version != expectedVersion {
		return c.version, &domain.StoreError{
			Op:         "write",
			Collection: name,
			Err:        fmt.Errorf("%w: expected version %d, stored %d", domain.ErrVersionConflict, expectedVersion, c.version),
		}
	}
	next := collection{records: cloneRecords(records), version: c.version + 1}
	s.collections[name] = next
	return next.version, nil
}

// Drop removes a collection entirely. Later reads fail with ErrCollectionNotFound.
func (s *Store) Drop(name domain.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
}

// ImportRaw replaces a collection without a version check, creating it if
// needed. It is intended for seeding fixtures, including malformed ones.
func (s *Store) ImportRaw(name domain.Collection, records []json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[name]
	s.collections[name] = collection{records: cloneRecords(records), version: c.version + 1}
}

func cloneRecords(in []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(in))
	for i, r := range in {
		cp := make(json.RawMessage, len(r))
		copy(cp, r)
		out[i] = cp
	}
	return out
}
