package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/types"
)

const storageScopeName = "github.com/prioritylab/prio/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in prio.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	queue  metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s storage.Store) *InstrumentedStore {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("prio.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("prio.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("prio.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	queue, _ := m.Int64Gauge("prio.queue.length",
		metric.WithDescription("Outbound queue length (snapshot from Entries)"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		queue:  queue,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Tasks ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", id)}
	ctx, span, t := s.op(ctx, "GetTask", attrs...)
	v, err := s.inner.GetTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	ctx, span, t := s.op(ctx, "SearchTasks")
	v, err := s.inner.SearchTasks(ctx, filter)
	span.SetAttributes(attribute.Int("prio.result.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ActiveSiblings(ctx context.Context, parentID *string) ([]*types.Task, error) {
	ctx, span, t := s.op(ctx, "ActiveSiblings")
	v, err := s.inner.ActiveSiblings(ctx, parentID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Children(ctx context.Context, id string) ([]*types.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", id)}
	ctx, span, t := s.op(ctx, "Children", attrs...)
	v, err := s.inner.Children(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) InsertTask(ctx context.Context, task *types.Task) error {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", task.ID)}
	ctx, span, t := s.op(ctx, "InsertTask", attrs...)
	err := s.inner.InsertTask(ctx, task)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateTask(ctx context.Context, task *types.Task) error {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", task.ID)}
	ctx, span, t := s.op(ctx, "UpdateTask", attrs...)
	err := s.inner.UpdateTask(ctx, task)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteTask(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", id)}
	ctx, span, t := s.op(ctx, "DeleteTask", attrs...)
	err := s.inner.DeleteTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ShiftRanks(ctx context.Context, parentID *string, fromRank, delta int, at time.Time) (int64, error) {
	attrs := []attribute.KeyValue{attribute.Int("prio.rank.from", fromRank), attribute.Int("prio.rank.delta", delta)}
	ctx, span, t := s.op(ctx, "ShiftRanks", attrs...)
	n, err := s.inner.ShiftRanks(ctx, parentID, fromRank, delta, at)
	span.SetAttributes(attribute.Int64("prio.rows.affected", n))
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

func (s *InstrumentedStore) SetSyncStatus(ctx context.Context, id string, status types.SyncStatus) error {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", id), attribute.String("prio.sync.status", string(status))}
	ctx, span, t := s.op(ctx, "SetSyncStatus", attrs...)
	err := s.inner.SetSyncStatus(ctx, id, status)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) MarkSynced(ctx context.Context, id string, syncedAt time.Time, serverUpdatedAt *time.Time) error {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", id)}
	ctx, span, t := s.op(ctx, "MarkSynced", attrs...)
	err := s.inner.MarkSynced(ctx, id, syncedAt, serverUpdatedAt)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Queue ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Entries(ctx context.Context) ([]*types.QueueEntry, error) {
	ctx, span, t := s.op(ctx, "Entries")
	v, err := s.inner.Entries(ctx)
	if err == nil {
		s.queue.Record(ctx, int64(len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) EntriesForTask(ctx context.Context, taskID string) ([]*types.QueueEntry, error) {
	attrs := []attribute.KeyValue{attribute.String("prio.task.id", taskID)}
	ctx, span, t := s.op(ctx, "EntriesForTask", attrs...)
	v, err := s.inner.EntriesForTask(ctx, taskID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Enqueue(ctx context.Context, entry *types.QueueEntry) (int64, error) {
	attrs := []attribute.KeyValue{
		attribute.String("prio.task.id", entry.TaskID),
		attribute.String("prio.queue.operation", string(entry.Operation)),
	}
	ctx, span, t := s.op(ctx, "Enqueue", attrs...)
	id, err := s.inner.Enqueue(ctx, entry)
	s.done(ctx, span, t, err, attrs...)
	return id, err
}

func (s *InstrumentedStore) RemoveEntry(ctx context.Context, queueID int64) error {
	attrs := []attribute.KeyValue{attribute.Int64("prio.queue.id", queueID)}
	ctx, span, t := s.op(ctx, "RemoveEntry", attrs...)
	err := s.inner.RemoveEntry(ctx, queueID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateEntryRetry(ctx context.Context, queueID int64, retryCount int, lastError string, nextAttemptAt *time.Time) error {
	attrs := []attribute.KeyValue{attribute.Int64("prio.queue.id", queueID), attribute.Int("prio.queue.retry", retryCount)}
	ctx, span, t := s.op(ctx, "UpdateEntryRetry", attrs...)
	err := s.inner.UpdateEntryRetry(ctx, queueID, retryCount, lastError, nextAttemptAt)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Metadata ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetMetadata(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("prio.metadata.key", key)}
	ctx, span, t := s.op(ctx, "GetMetadata", attrs...)
	v, err := s.inner.GetMetadata(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SetMetadata(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("prio.metadata.key", key)}
	ctx, span, t := s.op(ctx, "SetMetadata", attrs...)
	err := s.inner.SetMetadata(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

// RunInTransaction traces the whole transaction. Calls made through tx are
// not instrumented individually.
func (s *InstrumentedStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Path() string { return s.inner.Path() }

func (s *InstrumentedStore) Close() error { return s.inner.Close() }

// Unwrap returns the underlying store.
func (s *InstrumentedStore) Unwrap() storage.Store { return s.inner }

var _ storage.Store = (*InstrumentedStore)(nil)
