package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"freshcore/internal/infra/persistence/memory"
	"freshcore/pkg/domain"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

// countingClock returns successive instants one second apart and counts reads.
type countingClock struct {
	mu    sync.Mutex
	next  time.Time
	reads int
}

func (c *countingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

type logCall struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	c.calls = append(c.calls, logCall{level: level, msg: msg, args: args})
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) count(level string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.level == level {
			n++
		}
	}
	return n
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type capturePublisher struct {
	events []domain.BatchEvent
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, event domain.BatchEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

// faultyStore wraps a store and injects failures per collection.
type faultyStore struct {
	domain.CollectionStore
	readErr  map[domain.Collection]error
	writeErr map[domain.Collection]error
	writes   []domain.Collection
	// beforeWrite runs once before the first write to the named collection.
	beforeWrite map[domain.Collection]func()
}

func (f *faultyStore) Read(ctx context.Context, name domain.Collection) (domain.Snapshot, error) {
	if err := f.readErr[name]; err != nil {
		return domain.Snapshot{}, err
	}
	return f.CollectionStore.Read(ctx, name)
}

func (f *faultyStore) Write(ctx context.Context, name domain.Collection, records []json.RawMessage, expectedVersion int64) (int64, error) {
	if hook := f.beforeWrite[name]; hook != nil {
		delete(f.beforeWrite, name)
		hook()
	}
	if err := f.writeErr[name]; err != nil {
		return 0, err
	}
	f.writes = append(f.writes, name)
	return f.CollectionStore.Write(ctx, name, records, expectedVersion)
}

var errDiskFull = errors.New("disk full")

func seed[T any](t *testing.T, store *memory.Store, name domain.Collection, items ...T) {
	t.Helper()
	records, err := domain.EncodeRecords(items)
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	store.ImportRaw(name, records)
}

func newProduct(name string) domain.Product {
	return domain.Product{ID: uuid.New(), Name: name, Description: name + " portions"}
}

// newTestService returns a service over a memory store seeded with one product.
func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store, domain.Product) {
	t.Helper()
	store := memory.NewStore()
	product := newProduct("Lasagne")
	seed(t, store, domain.CollectionProducts, product)
	all := append([]ServiceOption{WithClock(stubClock{t: fixedNow})}, opts...)
	return NewService(store, all...), store, product
}

func versionOf(t *testing.T, store domain.CollectionStore, name domain.Collection) int64 {
	t.Helper()
	snap, err := store.Read(context.Background(), name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return snap.Version
}

func batchAt(productID uuid.UUID, expiration time.Time, size, available int) domain.Batch {
	return domain.Batch{ID: uuid.New(), ProductID: productID, Expiration: expiration, BatchSize: size, AvailableQuantity: available}
}
