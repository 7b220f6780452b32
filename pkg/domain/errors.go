package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel store failures. Collection stores wrap one of these so callers can
// test with errors.Is regardless of the backend.
var (
	// ErrCollectionNotFound reports that the backing collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionCorrupt reports that stored records could not be parsed.
	ErrCollectionCorrupt = errors.New("collection corrupt")
	// ErrStoreIO reports a durability failure while reading or writing.
	ErrStoreIO = errors.New("collection store io failure")
	// ErrVersionConflict reports a write derived from a stale collection version.
	ErrVersionConflict = errors.New("collection version conflict")
)

// ErrNotFound is returned when a lookup by id matches no record.
type ErrNotFound struct {
	Entity EntityType
	ID     uuid.UUID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrDataCorruption is returned when more than one record shares an id.
type ErrDataCorruption struct {
	Entity EntityType
	ID     uuid.UUID
	Count  int
}

func (e ErrDataCorruption) Error() string {
	return fmt.Sprintf("corrupted data: %d instances of %s %s", e.Count, e.Entity, e.ID)
}

// ValidationError reports a mutation that violates a domain rule. Requested and
// Available carry the quantities involved so callers can react.
type ValidationError struct {
	BatchID   uuid.UUID
	Requested int
	Available int
	Reason    string
}

func (e ValidationError) Error() string {
	if e.BatchID == uuid.Nil {
		return fmt.Sprintf("validation failed: %s (requested %d)", e.Reason, e.Requested)
	}
	return fmt.Sprintf("validation failed for batch %s: %s (requested %d, available %d)", e.BatchID, e.Reason, e.Requested, e.Available)
}

// StoreError wraps a collection store failure with the operation and collection involved.
type StoreError struct {
	Op         string
	Collection Collection
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// PartialWriteError reports that the batch state was persisted but the
// matching history event was not. The batch returned alongside it is current.
type PartialWriteError struct {
	BatchID uuid.UUID
	Phase   string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("batch %s persisted without history (%s): %v", e.BatchID, e.Phase, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// ErrorKind is the taxonomy member an error belongs to.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindNotFound       ErrorKind = "not_found"
	KindDataCorruption ErrorKind = "data_corruption"
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindStore          ErrorKind = "store"
	KindUnknown        ErrorKind = "unknown"
)

// KindOf classifies err into the error taxonomy. Version conflicts are a
// store failure but are reported separately so transports can signal retry.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		notFound   ErrNotFound
		corruption ErrDataCorruption
		validation ValidationError
		storeErr   *StoreError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &corruption):
		return KindDataCorruption
	case errors.As(err, &validation):
		return KindValidation
	case errors.Is(err, ErrVersionConflict):
		return KindConflict
	case errors.As(err, &storeErr),
		errors.Is(err, ErrCollectionNotFound),
		errors.Is(err, ErrCollectionCorrupt),
		errors.Is(err, ErrStoreIO):
		return KindStore
	default:
		return KindUnknown
	}
}
