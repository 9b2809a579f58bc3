package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const syncScopeName = "github.com/prioritylab/prio/sync"

// SyncMetrics records sync cycle outcomes in prio.sync.* metrics. A nil
// *SyncMetrics records nothing.
type SyncMetrics struct {
	tracer   trace.Tracer
	cycles   metric.Int64Counter
	entries  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSyncMetrics creates the sync instruments on the global meter provider.
// It returns nil when telemetry is disabled.
func NewSyncMetrics() *SyncMetrics {
	if !Enabled() {
		return nil
	}
	m := Meter(syncScopeName)
	cycles, _ := m.Int64Counter("prio.sync.cycles",
		metric.WithDescription("Sync cycles started, by trigger and outcome"),
	)
	entries, _ := m.Int64Counter("prio.sync.entries",
		metric.WithDescription("Queue entries delivered, by operation"),
	)
	failures, _ := m.Int64Counter("prio.sync.failures",
		metric.WithDescription("Failed remote calls, by phase"),
	)
	duration, _ := m.Float64Histogram("prio.sync.duration",
		metric.WithDescription("Sync cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &SyncMetrics{
		tracer:   Tracer(syncScopeName),
		cycles:   cycles,
		entries:  entries,
		failures: failures,
		duration: duration,
	}
}

// StartCycle opens a span for one cycle. The returned func ends it and
// records the cycle with its outcome.
func (m *SyncMetrics) StartCycle(ctx context.Context, trigger string) (context.Context, func(outcome string)) {
	if m == nil {
		return ctx, func(string) {}
	}
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "sync.cycle", trace.WithAttributes(attribute.String("prio.sync.trigger", trigger)))
	return ctx, func(outcome string) {
		attrs := metric.WithAttributes(
			attribute.String("prio.sync.trigger", trigger),
			attribute.String("prio.sync.outcome", outcome),
		)
		m.cycles.Add(ctx, 1, attrs)
		m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		span.SetAttributes(attribute.String("prio.sync.outcome", outcome))
		span.End()
	}
}

// EntryDelivered counts one successful queue entry.
func (m *SyncMetrics) EntryDelivered(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("prio.queue.operation", op)))
}

// Failure counts one failed remote call in phase ("drain" or "reconcile").
func (m *SyncMetrics) Failure(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("prio.sync.phase", phase)))
}
