package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"freshcore/pkg/domain"
)

func TestAddBatchPersistsBatchAndAddedEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, product := newTestService(t)
	expiration := fixedNow.Add(72 * time.Hour)

	created, err := svc.AddBatch(ctx, product.ID, 500, expiration)
	if err != nil {
		t.Fatalf("add batch: %v", err)
	}
	batches, err := svc.ListBatches(ctx)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
	got := batches[0]
	if got.ID != created.ID || got.ProductID != product.ID || got.BatchSize != 500 || got.AvailableQuantity != 500 {
		t.Fatalf("unexpected batch %+v", got)
	}
	if !got.Expiration.Equal(expiration) {
		t.Fatalf("expected expiration %s, got %s", expiration, got.Expiration)
	}

	history, err := svc.GetBatchHistory(ctx, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one event, got %d", len(history))
	}
	ev := history[0]
	if ev.EventType != domain.EventAdded || ev.AvailableQuantity != 500 || ev.BatchID != created.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.EventDate.Equal(fixedNow) || ev.Freshness != domain.FreshnessFresh {
		t.Fatalf("event should snapshot the operation instant: %+v", ev)
	}
}

func TestAddBatchRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)

	_, err := svc.AddBatch(ctx, product.ID, 0, fixedNow)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty batch, got %v", err)
	}

	unknown := uuid.New()
	_, err = svc.AddBatch(ctx, unknown, 10, fixedNow)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityProduct || nf.ID != unknown {
		t.Fatalf("expected product not found, got %v", err)
	}
	if v := versionOf(t, store, domain.CollectionBatches); v != 0 {
		t.Fatalf("rejected adds must not write batches, version %d", v)
	}
}

func TestAddBatchDuplicateProductIsCorruption(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	seed(t, store, domain.CollectionProducts, product, product)

	_, err := svc.AddBatch(ctx, product.ID, 10, fixedNow)
	if domain.KindOf(err) != domain.KindDataCorruption {
		t.Fatalf("expected data corruption, got %v", err)
	}
}

func TestAddBatchWithDefaultShelfLife(t *testing.T) {
	svc, _, product := newTestService(t)
	created, err := svc.AddBatchWithDefaultShelfLife(context.Background(), product.ID, 12)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if want := fixedNow.Add(7 * 24 * time.Hour); !created.Expiration.Equal(want) {
		t.Fatalf("expected expiration %s, got %s", want, created.Expiration)
	}
}

func TestRemoveFromBatchRecordsRemovalEvents(t *testing.T) {
	ctx := context.Background()
	svc, _, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 10, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cases := []struct {
		quantity  int
		remaining int
		event     domain.EventType
	}{
		{quantity: 4, remaining: 6, event: domain.EventPortionsRemoved},
		{quantity: 0, remaining: 6, event: domain.EventPortionsRemoved},
		{quantity: 6, remaining: 0, event: domain.EventEmptied},
	}
	for i, tc := range cases {
		updated, err := svc.RemoveFromBatch(ctx, created.ID, tc.quantity)
		if err != nil {
			t.Fatalf("case %d: remove: %v", i, err)
		}
		if updated.AvailableQuantity != tc.remaining {
			t.Fatalf("case %d: expected %d remaining, got %d", i, tc.remaining, updated.AvailableQuantity)
		}
		history, err := svc.GetBatchHistory(ctx, created.ID)
		if err != nil {
			t.Fatalf("case %d: history: %v", i, err)
		}
		last := history[len(history)-1]
		if last.EventType != tc.event || last.AvailableQuantity != tc.remaining {
			t.Fatalf("case %d: unexpected event %+v", i, last)
		}
	}
	batches, _ := svc.ListBatches(ctx)
	if batches[0].AvailableQuantity != 0 || batches[0].BatchSize != 10 {
		t.Fatalf("unexpected persisted batch %+v", batches[0])
	}
}

func TestRemoveFromBatchInsufficientStockWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 5, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	batchVersion := versionOf(t, store, domain.CollectionBatches)
	eventVersion := versionOf(t, store, domain.CollectionBatchEvents)

	_, err = svc.RemoveFromBatch(ctx, created.ID, 6)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Requested != 6 || verr.Available != 5 || verr.BatchID != created.ID {
		t.Fatalf("validation error should carry quantities: %+v", verr)
	}
	if versionOf(t, store, domain.CollectionBatches) != batchVersion || versionOf(t, store, domain.CollectionBatchEvents) != eventVersion {
		t.Fatalf("failed removal must not write")
	}
	batches, _ := svc.ListBatches(ctx)
	if batches[0].AvailableQuantity != 5 {
		t.Fatalf("stock changed after failed removal: %+v", batches[0])
	}

	if _, err := svc.RemoveFromBatch(ctx, created.ID, -1); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for negative quantity, got %v", err)
	}
}

func TestRemoveFromEmptyBatchRecordsNoSecondEmptied(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 3, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.RemoveFromBatch(ctx, created.ID, 3); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	eventVersion := versionOf(t, store, domain.CollectionBatchEvents)

	_, err = svc.RemoveFromBatch(ctx, created.ID, 0)
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Available != 0 {
		t.Fatalf("expected validation error on empty batch, got %v", err)
	}
	if versionOf(t, store, domain.CollectionBatchEvents) != eventVersion {
		t.Fatalf("rejected removal must not record an event")
	}
	history, err := svc.GetBatchHistory(ctx, created.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	emptied := 0
	for _, e := range history {
		if e.EventType == domain.EventEmptied {
			emptied++
		}
	}
	if emptied != 1 {
		t.Fatalf("expected exactly one Emptied event, got %d in %+v", emptied, history)
	}
}

func TestRemoveFromBatchUnknownIDWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	faulty := &faultyStore{CollectionStore: store}
	svc.store = faulty

	missing := uuid.New()
	_, err := svc.RemoveFromBatch(ctx, missing, 1)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityBatch || nf.ID != missing {
		t.Fatalf("expected batch not found, got %v", err)
	}
	if len(faulty.writes) != 0 {
		t.Fatalf("expected no writes, got %v", faulty.writes)
	}
}

func TestRemoveFromBatchDuplicateIDIsCorruption(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	b := batchAt(product.ID, fixedNow.Add(48*time.Hour), 10, 10)
	seed(t, store, domain.CollectionBatches, b, b)

	_, err := svc.RemoveFromBatch(ctx, b.ID, 1)
	var corrupt domain.ErrDataCorruption
	if !errors.As(err, &corrupt) || corrupt.Count != 2 || corrupt.ID != b.ID {
		t.Fatalf("expected data corruption, got %v", err)
	}
}

func TestOverviewAndFreshnessFilter(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	fresh := batchAt(product.ID, fixedNow.Add(48*time.Hour), 10, 10)
	expiring := batchAt(product.ID, fixedNow.Add(2*time.Hour), 10, 10)
	expired := batchAt(product.ID, fixedNow.Add(-time.Minute), 10, 10)
	seed(t, store, domain.CollectionBatches, fresh, expiring, expired)

	overview, err := svc.GetOverviewByFreshness(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	want := domain.FreshnessTally{Batches: 1, Portions: 10}
	if overview.Fresh != want || overview.ExpiringToday != want || overview.Expired != want {
		t.Fatalf("unexpected overview %+v", overview)
	}

	for f, id := range map[domain.Freshness]uuid.UUID{
		domain.FreshnessFresh:         fresh.ID,
		domain.FreshnessExpiringToday: expiring.ID,
		domain.FreshnessExpired:       expired.ID,
	} {
		got, err := svc.ListBatchesByFreshness(ctx, f)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if len(got) != 1 || got[0].ID != id {
			t.Fatalf("%s: unexpected batches %+v", f, got)
		}
	}
	if _, err := svc.ListBatchesByFreshness(ctx, domain.Freshness("Stale")); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for unknown freshness, got %v", err)
	}
}

func TestOverviewOfEmptyCollection(t *testing.T) {
	svc, _, _ := newTestService(t)
	overview, err := svc.GetOverviewByFreshness(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview != (domain.OverviewByFreshness{}) {
		t.Fatalf("expected zero overview, got %+v", overview)
	}
}

func TestGetBatchHistorySortsByEventDate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	id := uuid.New()
	other := uuid.New()
	seed(t, store, domain.CollectionBatchEvents,
		domain.BatchEvent{BatchID: id, EventDate: fixedNow.Add(2 * time.Hour), EventType: domain.EventEmptied},
		domain.BatchEvent{BatchID: other, EventDate: fixedNow, EventType: domain.EventAdded},
		domain.BatchEvent{BatchID: id, EventDate: fixedNow, EventType: domain.EventAdded},
		domain.BatchEvent{BatchID: id, EventDate: fixedNow.Add(time.Hour), EventType: domain.EventPortionsRemoved},
	)

	history, err := svc.GetBatchHistory(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []domain.EventType{domain.EventAdded, domain.EventPortionsRemoved, domain.EventEmptied}
	if len(history) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(history))
	}
	for i, ev := range history {
		if ev.EventType != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], ev.EventType)
		}
	}

	empty, err := svc.GetBatchHistory(ctx, uuid.New())
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %v %v", empty, err)
	}
}

func TestTwoPhaseWritePartialFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	faulty := &faultyStore{
		CollectionStore: store,
		writeErr: map[domain.Collection]error{
			domain.CollectionBatchEvents: &domain.StoreError{Op: "write", Collection: domain.CollectionBatchEvents, Err: domain.ErrStoreIO},
		},
	}
	svc.store = faulty

	created, err := svc.AddBatch(ctx, product.ID, 8, fixedNow.Add(48*time.Hour))
	var partial *domain.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial write error, got %v", err)
	}
	if partial.BatchID != created.ID || created.ID == uuid.Nil {
		t.Fatalf("partial write should identify the persisted batch: %+v", partial)
	}
	if !errors.Is(err, domain.ErrStoreIO) || domain.KindOf(err) != domain.KindStore {
		t.Fatalf("partial write should unwrap to the store failure: %v", err)
	}

	delete(faulty.writeErr, domain.CollectionBatchEvents)
	orphans, err := svc.FindBatchesWithoutHistory(ctx)
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != created.ID {
		t.Fatalf("expected the unrecorded batch, got %+v", orphans)
	}
	history, err := svc.GetBatchHistory(ctx, created.ID)
	if err != nil || len(history) != 0 {
		t.Fatalf("history should under-report, not fail: %v %v", history, err)
	}

	faulty.writeErr[domain.CollectionBatchEvents] = errDiskFull
	updated, err := svc.RemoveFromBatch(ctx, created.ID, 3)
	if !errors.As(err, &partial) || updated.AvailableQuantity != 5 {
		t.Fatalf("expected partial removal with updated batch, got %+v %v", updated, err)
	}
	if !errors.Is(err, domain.ErrStoreIO) {
		t.Fatalf("foreign store errors should be classified as io failures: %v", err)
	}
}

func TestConcurrentWriterLosesWithConflict(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 10, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	rival := NewService(store, WithClock(stubClock{t: fixedNow}))
	faulty := &faultyStore{
		CollectionStore: store,
		beforeWrite: map[domain.Collection]func(){
			domain.CollectionBatches: func() {
				if _, err := rival.RemoveFromBatch(ctx, created.ID, 7); err != nil {
					t.Fatalf("rival removal: %v", err)
				}
			},
		},
	}
	svc.store = faulty

	_, err = svc.RemoveFromBatch(ctx, created.ID, 7)
	if !errors.Is(err, domain.ErrVersionConflict) || domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected version conflict, got %v", err)
	}
	batches, _ := rival.ListBatches(ctx)
	if batches[0].AvailableQuantity != 3 {
		t.Fatalf("expected only the rival removal to apply, got %+v", batches[0])
	}
}

func TestDisposeBatch(t *testing.T) {
	ctx := context.Background()
	svc, _, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 9, fixedNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.RemoveFromBatch(ctx, created.ID, 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	disposed, err := svc.DisposeBatch(ctx, created.ID)
	if err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if disposed.AvailableQuantity != 0 || disposed.BatchSize != 9 {
		t.Fatalf("unexpected disposed batch %+v", disposed)
	}
	history, _ := svc.GetBatchHistory(ctx, created.ID)
	last := history[len(history)-1]
	if last.EventType != domain.EventDisposedOf || last.AvailableQuantity != 7 || last.Freshness != domain.FreshnessExpired {
		t.Fatalf("disposal event should snapshot the discarded stock: %+v", last)
	}

	_, err = svc.DisposeBatch(ctx, created.ID)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error disposing an empty batch, got %v", err)
	}
	if _, err := svc.DisposeBatch(ctx, uuid.New()); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFixExpirationDateRecordsNoEvent(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	created, err := svc.AddBatch(ctx, product.ID, 4, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	events := versionOf(t, store, domain.CollectionBatchEvents)
	corrected := fixedNow.Add(time.Hour).In(time.FixedZone("UTC+2", 7200))

	updated, err := svc.FixExpirationDate(ctx, created.ID, corrected)
	if err != nil {
		t.Fatalf("fix expiration: %v", err)
	}
	if !updated.Expiration.Equal(corrected) || updated.FreshnessAt(fixedNow) != domain.FreshnessExpiringToday {
		t.Fatalf("unexpected batch %+v", updated)
	}
	if versionOf(t, store, domain.CollectionBatchEvents) != events {
		t.Fatalf("administrative corrections must not record events")
	}
	if _, err := svc.FixExpirationDate(ctx, uuid.New(), corrected); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFixQuantitiesOverrideIsFlagged(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	audit := &captureAuditRecorder{}
	svc, store, product := newTestService(t, WithLogger(logger), WithAuditRecorder(audit))
	created, err := svc.AddBatch(ctx, product.ID, 4, fixedNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	events := versionOf(t, store, domain.CollectionBatchEvents)

	updated, err := svc.FixQuantities(ctx, created.ID, 20, 15)
	if err != nil || updated.BatchSize != 20 || updated.AvailableQuantity != 15 {
		t.Fatalf("fix quantities: %+v %v", updated, err)
	}
	if logger.count("warn") != 0 || audit.has(OpFixQuantities, AuditStatusFlagged, nil) {
		t.Fatalf("consistent override should not be flagged")
	}

	updated, err = svc.FixQuantities(ctx, created.ID, 5, 8)
	if err != nil || updated.AvailableQuantity != 8 {
		t.Fatalf("inconsistent override should still apply: %+v %v", updated, err)
	}
	if logger.count("warn") != 1 {
		t.Fatalf("expected one warning, got %d", logger.count("warn"))
	}
	if !audit.has(OpFixQuantities, AuditStatusFlagged, func(e AuditEntry) bool { return e.EntityID == created.ID.String() }) {
		t.Fatalf("expected flagged audit entry")
	}
	if versionOf(t, store, domain.CollectionBatchEvents) != events {
		t.Fatalf("administrative corrections must not record events")
	}

	if _, err := svc.FixQuantities(ctx, created.ID, -1, 0); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for negative size, got %v", err)
	}
}

func TestOperationsReadClockOnce(t *testing.T) {
	ctx := context.Background()
	clock := &countingClock{next: fixedNow}
	svc, _, product := newTestService(t, WithClock(clock))

	created, err := svc.AddBatch(ctx, product.ID, 3, fixedNow.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if clock.reads != 1 {
		t.Fatalf("expected one clock read, got %d", clock.reads)
	}
	if _, err := svc.RemoveFromBatch(ctx, created.ID, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if clock.reads != 2 {
		t.Fatalf("expected one clock read per operation, got %d", clock.reads)
	}
	history, _ := svc.GetBatchHistory(ctx, created.ID)
	if !history[0].EventDate.Equal(fixedNow) || !history[1].EventDate.Equal(fixedNow.Add(time.Second)) {
		t.Fatalf("event dates should come from each operation's single instant: %+v", history)
	}
}

func TestStoreFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	store.ImportRaw(domain.CollectionBatches, []json.RawMessage{json.RawMessage(`{"id": 5}`)})
	_, err := svc.ListBatches(ctx)
	var se *domain.StoreError
	if !errors.As(err, &se) || !errors.Is(err, domain.ErrCollectionCorrupt) || se.Collection != domain.CollectionBatches {
		t.Fatalf("expected corrupt batches, got %v", err)
	}

	store.Drop(domain.CollectionBatchEvents)
	if _, err := svc.GetBatchHistory(ctx, uuid.New()); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected missing collection, got %v", err)
	}

	faulty := &faultyStore{CollectionStore: store, readErr: map[domain.Collection]error{domain.CollectionProducts: errDiskFull}}
	svc.store = faulty
	_, err = svc.ListProducts(ctx)
	if !errors.Is(err, errDiskFull) || !errors.Is(err, domain.ErrStoreIO) || domain.KindOf(err) != domain.KindStore {
		t.Fatalf("expected wrapped io failure, got %v", err)
	}
}

func TestImportProducts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	a, b := newProduct("Soup"), newProduct("Bread")

	if err := svc.ImportProducts(ctx, []domain.Product{a, b}); err != nil {
		t.Fatalf("import: %v", err)
	}
	products, err := svc.ListProducts(ctx)
	if err != nil || len(products) != 2 || products[0].ID != a.ID || products[1].Name != "Bread" {
		t.Fatalf("unexpected catalog %+v %v", products, err)
	}
	if err := svc.ImportProducts(ctx, []domain.Product{a, a}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := svc.ImportProducts(ctx, []domain.Product{{Name: "anonymous"}}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected nil id rejection, got %v", err)
	}
	if products, _ := svc.ListProducts(ctx); len(products) != 2 {
		t.Fatalf("rejected imports must keep the catalog, got %d", len(products))
	}
}

func TestBatchCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, product := newTestService(t)
	batches := []domain.Batch{
		batchAt(product.ID, fixedNow.Add(time.Hour), 3, 1),
		batchAt(product.ID, fixedNow.Add(50*time.Hour), 7, 7),
	}
	if err := saveCollection(ctx, store, domain.CollectionBatches, batches, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := svc.ListBatches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byID := make(map[uuid.UUID]domain.Batch, len(got))
	for _, b := range got {
		byID[b.ID] = b
	}
	for _, want := range batches {
		have, ok := byID[want.ID]
		if !ok || have.ProductID != want.ProductID || have.BatchSize != want.BatchSize ||
			have.AvailableQuantity != want.AvailableQuantity || !have.Expiration.Equal(want.Expiration) {
			t.Fatalf("round trip mismatch: want %+v have %+v", want, have)
		}
	}
}
