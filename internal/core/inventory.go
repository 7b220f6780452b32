package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"freshcore/pkg/domain"
)

// Two-phase write phases reported by PartialWriteError.
const (
	phaseEventAdded     = "record added event"
	phaseEventRemoval   = "record removal event"
	phaseEventDisposal  = "record disposal event"
	detailQuantityAbove = "available quantity exceeds batch size"
)

// ListProducts returns the whole product catalog.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := s.run(ctx, OpListProducts, func(ctx context.Context, _ time.Time) (string, error) {
		var err error
		products, _, err = loadCollection[domain.Product](ctx, s.store, domain.CollectionProducts)
		return "", err
	})
	return products, err
}

// ImportProducts replaces the catalog with products. Ids must be non-nil and unique.
func (s *Service) ImportProducts(ctx context.Context, products []domain.Product) error {
	return s.run(ctx, OpImportProducts, func(ctx context.Context, _ time.Time) (string, error) {
		seen := make(map[uuid.UUID]struct{}, len(products))
		for _, p := range products {
			if p.ID == uuid.Nil {
				return "", domain.ValidationError{Reason: fmt.Sprintf("product %q has no id", p.Name)}
			}
			if _, dup := seen[p.ID]; dup {
				return p.ID.String(), domain.ValidationError{Reason: fmt.Sprintf("duplicate product id %s", p.ID)}
			}
			seen[p.ID] = struct{}{}
		}
		_, version, err := loadCollection[domain.Product](ctx, s.store, domain.CollectionProducts)
		if err != nil {
			return "", err
		}
		return "", saveCollection(ctx, s.store, domain.CollectionProducts, products, version)
	})
}

// ListBatches returns every batch regardless of freshness.
func (s *Service) ListBatches(ctx context.Context) ([]domain.Batch, error) {
	var batches []domain.Batch
	err := s.run(ctx, OpListBatches, func(ctx context.Context, _ time.Time) (string, error) {
		var err error
		batches, _, err = loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
		return "", err
	})
	return batches, err
}

// ListBatchesByFreshness returns the batches whose freshness, evaluated now,
// equals freshness.
func (s *Service) ListBatchesByFreshness(ctx context.Context, freshness domain.Freshness) ([]domain.Batch, error) {
	var matched []domain.Batch
	err := s.run(ctx, OpListBatchesByFreshness, func(ctx context.Context, now time.Time) (string, error) {
		if !freshness.Valid() {
			return "", domain.ValidationError{Reason: fmt.Sprintf("unknown freshness %q", freshness)}
		}
		batches, _, err := loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
		if err != nil {
			return "", err
		}
		matched = make([]domain.Batch, 0, len(batches))
		for _, b := range batches {
			if b.FreshnessAt(now) == freshness {
				matched = append(matched, b)
			}
		}
		return "", nil
	})
	return matched, err
}

// GetBatchHistory returns the events of batchID in ascending date order. A
// batch without events, known or not, yields an empty history.
func (s *Service) GetBatchHistory(ctx context.Context, batchID uuid.UUID) ([]domain.BatchEvent, error) {
	var history []domain.BatchEvent
	err := s.run(ctx, OpGetBatchHistory, func(ctx context.Context, _ time.Time) (string, error) {
		events, _, err := loadCollection[domain.BatchEvent](ctx, s.store, domain.CollectionBatchEvents)
		if err != nil {
			return batchID.String(), err
		}
		history = make([]domain.BatchEvent, 0)
		for _, e := range events {
			if e.BatchID == batchID {
				history = append(history, e)
			}
		}
		domain.SortEventsByDate(history)
		return batchID.String(), nil
	})
	return history, err
}

// FindBatchesWithoutHistory returns batches that have no Added event, which is
// what an interrupted AddBatch leaves behind.
func (s *Service) FindBatchesWithoutHistory(ctx context.Context) ([]domain.Batch, error) {
	var orphans []domain.Batch
	err := s.run(ctx, OpFindBatchesWithoutHistory, func(ctx context.Context, _ time.Time) (string, error) {
		batches, _, err := loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
		if err != nil {
			return "", err
		}
		events, _, err := loadCollection[domain.BatchEvent](ctx, s.store, domain.CollectionBatchEvents)
		if err != nil {
			return "", err
		}
		added := make(map[uuid.UUID]bool, len(events))
		for _, e := range events {
			if e.EventType == domain.EventAdded {
				added[e.BatchID] = true
			}
		}
		orphans = make([]domain.Batch, 0)
		for _, b := range batches {
			if !added[b.ID] {
				orphans = append(orphans, b)
			}
		}
		return "", nil
	})
	return orphans, err
}

// AddBatch creates a full batch of productID, persists it and then records
// its Added event. When only the event write fails the new batch is returned
// together with a *domain.PartialWriteError.
func (s *Service) AddBatch(ctx context.Context, productID uuid.UUID, batchSize int, expiration time.Time) (domain.Batch, error) {
	var created domain.Batch
	err := s.run(ctx, OpAddBatch, func(ctx context.Context, now time.Time) (string, error) {
		var err error
		created, err = s.addBatch(ctx, now, productID, batchSize, func(time.Time) time.Time { return expiration })
		return created.ID.String(), err
	})
	return created, err
}

// AddBatchWithDefaultShelfLife behaves like AddBatch with an expiration of
// now plus domain.DefaultShelfLife.
func (s *Service) AddBatchWithDefaultShelfLife(ctx context.Context, productID uuid.UUID, batchSize int) (domain.Batch, error) {
	var created domain.Batch
	err := s.run(ctx, OpAddBatch, func(ctx context.Context, now time.Time) (string, error) {
		var err error
		created, err = s.addBatch(ctx, now, productID, batchSize, func(now time.Time) time.Time { return now.Add(domain.DefaultShelfLife) })
		return created.ID.String(), err
	})
	return created, err
}

func (s *Service) addBatch(ctx context.Context, now time.Time, productID uuid.UUID, batchSize int, expiration func(time.Time) time.Time) (domain.Batch, error) {
	batch, err := domain.NewBatch(productID, batchSize, expiration(now))
	if err != nil {
		return domain.Batch{}, err
	}
	products, _, err := loadCollection[domain.Product](ctx, s.store, domain.CollectionProducts)
	if err != nil {
		return domain.Batch{}, err
	}
	if _, err := domain.FindProduct(products, productID); err != nil {
		return domain.Batch{}, err
	}
	batches, version, err := loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
	if err != nil {
		return domain.Batch{}, err
	}
	if err := saveCollection(ctx, s.store, domain.CollectionBatches, append(batches, batch), version); err != nil {
		return domain.Batch{}, err
	}
	if err := s.recordEvent(ctx, batch, domain.EventAdded, now, phaseEventAdded); err != nil {
		return batch, err
	}
	return batch, nil
}

// RemoveFromBatch takes quantity portions out of batchID and records either a
// PortionsRemoved or an Emptied event. Asking for more than is available, or
// removing anything from an empty batch, fails with a domain.ValidationError
// before anything is written.
func (s *Service) RemoveFromBatch(ctx context.Context, batchID uuid.UUID, quantity int) (domain.Batch, error) {
	var updated domain.Batch
	err := s.run(ctx, OpRemoveFromBatch, func(ctx context.Context, now time.Time) (string, error) {
		batches, version, idx, err := s.locateBatch(ctx, batchID)
		if err != nil {
			return batchID.String(), err
		}
		batch := batches[idx]
		switch {
		case quantity < 0:
			return batchID.String(), domain.ValidationError{BatchID: batchID, Requested: quantity, Available: batch.AvailableQuantity, Reason: "quantity must not be negative"}
		case quantity > batch.AvailableQuantity:
			return batchID.String(), domain.ValidationError{BatchID: batchID, Requested: quantity, Available: batch.AvailableQuantity, Reason: "insufficient stock"}
		case batch.AvailableQuantity == 0:
			return batchID.String(), domain.ValidationError{BatchID: batchID, Requested: quantity, Available: 0, Reason: "batch is already empty"}
		}
		batch.AvailableQuantity -= quantity
		batches[idx] = batch
		if err := saveCollection(ctx, s.store, domain.CollectionBatches, batches, version); err != nil {
			return batchID.String(), err
		}
		updated = batch
		return batchID.String(), s.recordEvent(ctx, batch, domain.RemovalEventType(batch.AvailableQuantity), now, phaseEventRemoval)
	})
	return updated, err
}

// DisposeBatch discards the remaining portions of batchID. The DisposedOf
// event carries the quantity that was thrown away; the batch is left empty.
func (s *Service) DisposeBatch(ctx context.Context, batchID uuid.UUID) (domain.Batch, error) {
	var updated domain.Batch
	err := s.run(ctx, OpDisposeBatch, func(ctx context.Context, now time.Time) (string, error) {
		batches, version, idx, err := s.locateBatch(ctx, batchID)
		if err != nil {
			return batchID.String(), err
		}
		batch := batches[idx]
		if batch.AvailableQuantity <= 0 {
			return batchID.String(), domain.ValidationError{BatchID: batchID, Available: batch.AvailableQuantity, Reason: "nothing left to dispose of"}
		}
		event := domain.RecordEvent(batch, domain.EventDisposedOf, now)
		batch.AvailableQuantity = 0
		batches[idx] = batch
		if err := saveCollection(ctx, s.store, domain.CollectionBatches, batches, version); err != nil {
			return batchID.String(), err
		}
		updated = batch
		return batchID.String(), s.persistEvent(ctx, event, phaseEventDisposal)
	})
	return updated, err
}

// FixExpirationDate overwrites the expiration of batchID. No event is recorded.
func (s *Service) FixExpirationDate(ctx context.Context, batchID uuid.UUID, expiration time.Time) (domain.Batch, error) {
	var updated domain.Batch
	err := s.run(ctx, OpFixExpirationDate, func(ctx context.Context, _ time.Time) (string, error) {
		batches, version, idx, err := s.locateBatch(ctx, batchID)
		if err != nil {
			return batchID.String(), err
		}
		batches[idx].Expiration = expiration.UTC()
		if err := saveCollection(ctx, s.store, domain.CollectionBatches, batches, version); err != nil {
			return batchID.String(), err
		}
		updated = batches[idx]
		return batchID.String(), nil
	})
	return updated, err
}

// FixQuantities overwrites both quantities of batchID. It is an operator
// override: an available quantity above the batch size is accepted but logged
// and audited as flagged. Negative values are rejected. No event is recorded.
func (s *Service) FixQuantities(ctx context.Context, batchID uuid.UUID, batchSize, availableQuantity int) (domain.Batch, error) {
	var updated domain.Batch
	err := s.run(ctx, OpFixQuantities, func(ctx context.Context, now time.Time) (string, error) {
		if batchSize < 0 || availableQuantity < 0 {
			return batchID.String(), domain.ValidationError{BatchID: batchID, Requested: batchSize, Available: availableQuantity, Reason: "quantities must not be negative"}
		}
		batches, version, idx, err := s.locateBatch(ctx, batchID)
		if err != nil {
			return batchID.String(), err
		}
		batches[idx].BatchSize = batchSize
		batches[idx].AvailableQuantity = availableQuantity
		if err := saveCollection(ctx, s.store, domain.CollectionBatches, batches, version); err != nil {
			return batchID.String(), err
		}
		updated = batches[idx]
		if availableQuantity > batchSize {
			s.logger.Warn("batch quantities inconsistent after override", "batch_id", batchID.String(), "batch_size", batchSize, "available_quantity", availableQuantity)
			s.recordAudit(ctx, AuditEntry{Operation: OpFixQuantities, EntityID: batchID.String(), Status: AuditStatusFlagged, Detail: detailQuantityAbove, Timestamp: now})
		}
		return batchID.String(), nil
	})
	return updated, err
}

// GetOverviewByFreshness aggregates the current batches by freshness.
func (s *Service) GetOverviewByFreshness(ctx context.Context) (domain.OverviewByFreshness, error) {
	var overview domain.OverviewByFreshness
	err := s.run(ctx, OpGetOverviewByFreshness, func(ctx context.Context, now time.Time) (string, error) {
		batches, _, err := loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
		if err != nil {
			return "", err
		}
		overview = domain.AggregateOverview(batches, now)
		return "", nil
	})
	return overview, err
}

func (s *Service) locateBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Batch, int64, int, error) {
	batches, version, err := loadCollection[domain.Batch](ctx, s.store, domain.CollectionBatches)
	if err != nil {
		return nil, 0, -1, err
	}
	idx, err := domain.FindBatch(batches, batchID)
	if err != nil {
		return nil, 0, -1, err
	}
	return batches, version, idx, nil
}

func (s *Service) recordEvent(ctx context.Context, batch domain.Batch, eventType domain.EventType, now time.Time, phase string) error {
	return s.persistEvent(ctx, domain.RecordEvent(batch, eventType, now), phase)
}

// persistEvent runs the second write phase. Failures are reported as a
// PartialWriteError because the batch collection is already updated.
func (s *Service) persistEvent(ctx context.Context, event domain.BatchEvent, phase string) error {
	if err := appendEvent(ctx, s.store, event); err != nil {
		return &domain.PartialWriteError{BatchID: event.BatchID, Phase: phase, Err: err}
	}
	s.publish(ctx, event)
	return nil
}
