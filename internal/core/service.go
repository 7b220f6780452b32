package core

import (
	"context"
	"time"

	"freshcore/internal/infra/persistence/memory"
	"freshcore/pkg/domain"
)

// Operation names used for spans, metrics and audit entries.
const (
	OpListProducts              = "list_products"
	OpImportProducts            = "import_products"
	OpListBatches               = "list_batches"
	OpListBatchesByFreshness    = "list_batches_by_freshness"
	OpGetBatchHistory           = "get_batch_history"
	OpFindBatchesWithoutHistory = "find_batches_without_history"
	OpAddBatch                  = "add_batch"
	OpRemoveFromBatch           = "remove_from_batch"
	OpDisposeBatch              = "dispose_batch"
	OpFixExpirationDate         = "fix_expiration_date"
	OpFixQuantities             = "fix_quantities"
	OpGetOverviewByFreshness    = "get_overview_by_freshness"

	// OpPublishEvent is observed, not audited, for every downstream publish.
	OpPublishEvent = "publish_batch_event"
)

type operationMeta struct {
	entity  domain.EntityType
	mutates bool
}

var operations = map[string]operationMeta{
	OpListProducts:              {entity: domain.EntityProduct},
	OpImportProducts:            {entity: domain.EntityProduct, mutates: true},
	OpListBatches:               {entity: domain.EntityBatch},
	OpListBatchesByFreshness:    {entity: domain.EntityBatch},
	OpGetBatchHistory:           {entity: domain.EntityBatchEvent},
	OpFindBatchesWithoutHistory: {entity: domain.EntityBatch},
	OpAddBatch:                  {entity: domain.EntityBatch, mutates: true},
	OpRemoveFromBatch:           {entity: domain.EntityBatch, mutates: true},
	OpDisposeBatch:              {entity: domain.EntityBatch, mutates: true},
	OpFixExpirationDate:         {entity: domain.EntityBatch, mutates: true},
	OpFixQuantities:             {entity: domain.EntityBatch, mutates: true},
	OpGetOverviewByFreshness:    {entity: domain.EntityBatch},
}

// Service exposes the inventory operations over a collection store. It holds
// no locks: concurrent writers are arbitrated by the store's version check.
type Service struct {
	store     domain.CollectionStore
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	publisher EventPublisher
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.CollectionStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{
		store:     store,
		clock:     o.clock,
		logger:    o.logger,
		metrics:   o.metrics,
		tracer:    o.tracer,
		audit:     o.audit,
		publisher: o.publisher,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying collection store.
func (s *Service) Store() domain.CollectionStore {
	return s.store
}

// run wraps one operation with tracing, metrics, audit and logging. now is
// captured once and handed to fn; fn reports the id of the entity it touched.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, now time.Time) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	now := s.clock.Now()
	started := time.Now()
	entityID, err := fn(ctx, now)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		s.logger.Error("inventory operation failed", "operation", op, "entity_id", entityID, "kind", string(domain.KindOf(err)), "error", err)
		s.recordAudit(ctx, AuditEntry{Operation: op, EntityID: entityID, Status: AuditStatusError, Error: err.Error(), Duration: duration, Timestamp: now})
		return err
	}
	if operations[op].mutates {
		s.logger.Info("inventory operation committed", "operation", op, "entity_id", entityID, "duration", duration)
	} else {
		s.logger.Debug("inventory operation completed", "operation", op, "duration", duration)
	}
	s.recordAudit(ctx, AuditEntry{Operation: op, EntityID: entityID, Status: AuditStatusSuccess, Duration: duration, Timestamp: now})
	return nil
}

// recordAudit fills in the entity type for known operations and drops entries
// for anything else.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	meta, ok := operations[entry.Operation]
	if !ok {
		return
	}
	entry.Entity = meta.entity
	s.audit.Record(ctx, entry)
}

// publish forwards a persisted event. Failures are logged and counted; the
// event is already durable so the operation still succeeds.
func (s *Service) publish(ctx context.Context, event domain.BatchEvent) {
	started := time.Now()
	err := s.publisher.Publish(ctx, event)
	s.metrics.Observe(ctx, OpPublishEvent, err == nil, time.Since(started))
	if err != nil {
		s.logger.Warn("batch event not published", "batch_id", event.BatchID.String(), "event_type", string(event.EventType), "error", err)
	}
}
