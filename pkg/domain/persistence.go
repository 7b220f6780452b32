package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names one of the logical record collections.
type Collection string

const (
	// CollectionProducts holds the product catalog.
	CollectionProducts Collection = "products"
	// CollectionBatches holds every batch ever created.
	CollectionBatches Collection = "batches"
	// CollectionBatchEvents holds the append-only batch history.
	CollectionBatchEvents Collection = "batch_events"
)

// Collections lists the collections a store must provide.
var Collections = []Collection{CollectionProducts, CollectionBatches, CollectionBatchEvents}

// Snapshot is the full content of a collection at a given version.
type Snapshot struct {
	Records []json.RawMessage
	Version int64
}

// CollectionStore persists whole collections. Every write replaces the full
// record sequence and must carry the version the records were derived from;
// a stale expectedVersion fails with ErrVersionConflict and leaves the stored
// collection untouched. This is the serialization point that prevents lost
// updates between concurrent read-modify-write operations.
type CollectionStore interface {
	// Read returns the records and current version of name. Missing collections
	// fail with ErrCollectionNotFound, unparsable payloads with ErrCollectionCorrupt.
	Read(ctx context.Context, name Collection) (Snapshot, error)
	// Write replaces name with records and returns the new version. Durability
	// failures are reported as ErrStoreIO.
	Write(ctx context.Context, name Collection, records []json.RawMessage, expectedVersion int64) (int64, error)
}

// DecodeRecords unmarshals every record of a snapshot into T.
func DecodeRecords[T any](snap Snapshot) ([]T, error) {
	out := make([]T, 0, len(snap.Records))
	for i, raw := range snap.Records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("record %d: %w: %v", i, ErrCollectionCorrupt, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeRecords marshals items into raw records in order.
func EncodeRecords[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// SplitPayload parses a JSON array payload into raw records. Backends that
// store a collection as one document share this to report ErrCollectionCorrupt
// consistently.
func SplitPayload(payload []byte) ([]json.RawMessage, error) {
	if len(payload) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectionCorrupt, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// JoinPayload renders records as a JSON array document.
func JoinPayload(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	return json.Marshal(records)
}
