package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultShelfLife is applied when a batch is created without an expiration.
const DefaultShelfLife = 7 * 24 * time.Hour

// NewBatch creates a batch with a freshly generated id and a full stock of
// batchSize portions.
func NewBatch(productID uuid.UUID, batchSize int, expiration time.Time) (Batch, error) {
	if batchSize <= 0 {
		return Batch{}, ValidationError{Requested: batchSize, Reason: "batch size must be positive"}
	}
	return Batch{
		ID:                uuid.New(),
		ProductID:         productID,
		Expiration:        expiration.UTC(),
		BatchSize:         batchSize,
		AvailableQuantity: batchSize,
	}, nil
}

// NewBatchWithDefaultShelfLife creates a batch expiring DefaultShelfLife after now.
func NewBatchWithDefaultShelfLife(productID uuid.UUID, batchSize int, now time.Time) (Batch, error) {
	return NewBatch(productID, batchSize, now.Add(DefaultShelfLife))
}

// Lookup tags the outcome of an exactly-one search.
type Lookup int

const (
	// LookupFound means exactly one record matched.
	LookupFound Lookup = iota
	// LookupNotFound means no record matched.
	LookupNotFound
	// LookupDuplicate means more than one record matched.
	LookupDuplicate
)

func (l Lookup) String() string {
	switch l {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// FindExactlyOne scans items for id. It returns the index of the match when
// the tag is LookupFound, and the number of matches in every case. The first
// match is never silently preferred over a duplicate.
func FindExactlyOne[T any](items []T, id uuid.UUID, idOf func(T) uuid.UUID) (index int, count int, tag Lookup) {
	index = -1
	for i, item := range items {
		if idOf(item) != id {
			continue
		}
		if count == 0 {
			index = i
		}
		count++
	}
	switch count {
	case 0:
		return -1, 0, LookupNotFound
	case 1:
		return index, 1, LookupFound
	default:
		return -1, count, LookupDuplicate
	}
}

// FindBatch locates the batch with id, reporting not-found and duplicate
// outcomes as ErrNotFound and ErrDataCorruption respectively.
func FindBatch(batches []Batch, id uuid.UUID) (int, error) {
	idx, count, tag := FindExactlyOne(batches, id, func(b Batch) uuid.UUID { return b.ID })
	return idx, lookupErr(EntityBatch, id, count, tag)
}

// FindProduct locates the product with id using the same rules as FindBatch.
func FindProduct(products []Product, id uuid.UUID) (int, error) {
	idx, count, tag := FindExactlyOne(products, id, func(p Product) uuid.UUID { return p.ID })
	return idx, lookupErr(EntityProduct, id, count, tag)
}

func lookupErr(entity EntityType, id uuid.UUID, count int, tag Lookup) error {
	switch tag {
	case LookupNotFound:
		return ErrNotFound{Entity: entity, ID: id}
	case LookupDuplicate:
		return ErrDataCorruption{Entity: entity, ID: id, Count: count}
	default:
		return nil
	}
}
