package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"freshcore/pkg/domain"
)

var expvarSeq uint64

// OperationStats aggregates the outcomes of one inventory operation.
type OperationStats struct {
	Entity    domain.EntityType `json:"entity,omitempty"`
	Mutates   bool              `json:"mutates"`
	Successes int64             `json:"successes"`
	Failures  int64             `json:"failures"`
	TotalMS   float64           `json:"total_ms"`
	MaxMS     float64           `json:"max_ms"`
}

// ExpvarMetricsSnapshot is a point-in-time copy of the published counters.
type ExpvarMetricsSnapshot struct {
	Operations      map[string]OperationStats `json:"operations"`
	FailedMutations int64                     `json:"failed_mutations"`
	RecordedAt      time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder publishes per-operation counters under /debug/vars.
type ExpvarMetricsRecorder struct {
	name string

	mu              sync.Mutex
	ops             map[string]*OperationStats
	failedMutations int64
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when name is empty. expvar names are process global,
// so publishing the same name twice panics.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("freshcore_inventory_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder. Empty operation names are ignored.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	meta := operations[operation]

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &OperationStats{Entity: meta.entity, Mutates: meta.mutates}
		r.ops[operation] = st
	}
	if success {
		st.Successes++
	} else {
		st.Failures++
		if meta.mutates {
			r.failedMutations++
		}
	}
	st.TotalMS += ms
	if ms > st.MaxMS {
		st.MaxMS = ms
	}
}

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]OperationStats, len(r.ops))
	for name, st := range r.ops {
		ops[name] = *st
	}
	return ExpvarMetricsSnapshot{Operations: ops, FailedMutations: r.failedMutations, RecordedAt: time.Now().UTC()}
}

// TeeMetricsRecorder fans each observation out to every non-nil recorder.
func TeeMetricsRecorder(recorders ...MetricsRecorder) MetricsRecorder {
	out := make(teeMetrics, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type teeMetrics []MetricsRecorder

func (t teeMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range t {
		r.Observe(ctx, operation, success, duration)
	}
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string            `json:"operation"`
	Entity     domain.EntityType `json:"entity,omitempty"`
	Status     string            `json:"status"`
	Kind       domain.ErrorKind  `json:"kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMS float64           `json:"duration_ms"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

// JSONTraceTracer writes each span as a JSON line and keeps it in memory.
// It stands in for an OTLP collector during local runs.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Entity:     operations[s.operation].entity,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = string(AuditStatusError)
		entry.Kind = domain.KindOf(err)
		entry.Error = err.Error()
	}

	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
