// Package domain defines the inventory entities, value types, and pure
// bookkeeping primitives used by freshcore.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the type of record stored in the inventory domain.
type EntityType string

// Supported entity type identifiers used in errors and audit entries.
const (
	// EntityProduct identifies a catalog product record.
	EntityProduct EntityType = "product"
	// EntityBatch identifies a batch of portions.
	EntityBatch EntityType = "batch"
	// EntityBatchEvent identifies a batch history record.
	EntityBatchEvent EntityType = "batch_event"
)

// Product is an externally owned catalog entry referenced by batches.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// Batch is a tracked lot of portions of one product.
//
// AvailableQuantity never exceeds BatchSize and never goes below zero, except
// when an operator overrides both values through FixQuantities.
type Batch struct {
	ID                uuid.UUID `json:"id"`
	ProductID         uuid.UUID `json:"product_id"`
	Expiration        time.Time `json:"expiration"`
	BatchSize         int       `json:"batch_size"`
	AvailableQuantity int       `json:"available_quantity"`
}

// FreshnessAt classifies the batch against the supplied instant.
func (b Batch) FreshnessAt(now time.Time) Freshness {
	return Classify(b.Expiration, now)
}

// EventType enumerates the state-changing actions recorded in batch history.
type EventType string

const (
	// EventAdded marks the creation of a batch.
	EventAdded EventType = "Added"
	// EventPortionsRemoved marks a removal that left stock behind.
	EventPortionsRemoved EventType = "PortionsRemoved"
	// EventEmptied marks a removal that brought the batch to zero.
	EventEmptied EventType = "Emptied"
	// EventDisposedOf marks the disposal of the remaining portions.
	EventDisposedOf EventType = "DisposedOf"
)

// BatchEvent is an immutable snapshot of a batch taken when an action was recorded.
type BatchEvent struct {
	BatchID           uuid.UUID `json:"batch_id"`
	EventDate         time.Time `json:"event_date"`
	EventType         EventType `json:"event_type"`
	AvailableQuantity int       `json:"available_quantity"`
	Freshness         Freshness `json:"freshness"`
}
