// Package syncer keeps the local store and the task server in agreement.
//
// A cycle backfills the outbound queue, drains it against the server and
// then reconciles the full task sets. Cycles are single-flight: asking for
// one while another runs is a silent no-op.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prioritylab/prio/internal/merge"
	"github.com/prioritylab/prio/internal/outbox"
	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/telemetry"
)

// DefaultInterval is the periodic sync period.
const DefaultInterval = 5 * time.Minute

// Metadata keys written after each cycle.
const (
	MetaLastAttempt = "sync.last_attempt"
	MetaLastSuccess = "sync.last_success"
)

// Trigger names what started a cycle.
type Trigger string

// Sync triggers
const (
	TriggerManual      Trigger = "manual"
	TriggerInitial     Trigger = "initial"
	TriggerTimer       Trigger = "timer"
	TriggerFocus       Trigger = "focus"
	TriggerReconnect   Trigger = "reconnect"
	TriggerLocalChange Trigger = "local-change"
)

// State is the coordinator's activity.
type State string

// Coordinator states
const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Report describes one cycle.
type Report struct {
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time

	// Skipped is set when another cycle was already running.
	Skipped bool
	// Offline is set when the cycle did not run because the server was
	// unreachable.
	Offline bool

	Backfilled int
	Delivered  int
	Retried    int
	Dropped    int
	Exhausted  []*outbox.RetryExhaustedError

	Merge      *merge.Result
	Normalized int

	Errors []error
}

// Err joins every error collected during the cycle.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

func (r *Report) fail(phase string, err error) {
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", phase, err))
}

// Coordinator runs sync cycles against one store and one server.
type Coordinator struct {
	store   storage.Store
	remote  remote.Service
	queue   *outbox.Queue
	engine  *rank.Engine
	log     *slog.Logger
	metrics *telemetry.SyncMetrics
	now     func() time.Time

	interval      time.Duration
	probeInterval time.Duration
	watchPath     string
	debounce      time.Duration

	monitor  *Monitor
	running  atomic.Bool
	triggers chan Trigger
	last     atomic.Pointer[Report]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger; the default discards.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithMetrics records cycles in OTel metrics.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithInterval sets the periodic trigger period. Zero disables the timer.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithProbeInterval sets how often the server is probed while online.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.probeInterval = d }
}

// WithQueue replaces the default queue, e.g. to change the retry limit.
func WithQueue(q *outbox.Queue) Option {
	return func(c *Coordinator) { c.queue = q }
}

// WithWatch makes Run trigger a cycle when the database file at path is
// written by another process, after debounce of quiet.
func WithWatch(path string, debounce time.Duration) Option {
	return func(c *Coordinator) {
		c.watchPath = path
		c.debounce = debounce
	}
}

// New creates a coordinator. engine is used to repair rank density after
// merges.
func New(store storage.Store, svc remote.Service, engine *rank.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		remote:        svc,
		engine:        engine,
		log:           slog.New(slog.DiscardHandler),
		now:           time.Now,
		interval:      DefaultInterval,
		probeInterval: 30 * time.Second,
		debounce:      2 * time.Second,
		triggers:      make(chan Trigger, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queue == nil {
		c.queue = outbox.New(store, outbox.WithClock(c.now))
	}
	c.monitor = NewMonitor(svc, c.probeInterval, c.log, func() { c.Trigger(TriggerReconnect) })
	return c
}

// State reports whether a cycle is running.
func (c *Coordinator) State() State {
	if c.running.Load() {
		return StateSyncing
	}
	return StateIdle
}

// Online reports the last known server reachability.
func (c *Coordinator) Online() bool { return c.monitor.Online() }

// LastReport returns the report of the most recent cycle that ran.
func (c *Coordinator) LastReport() *Report { return c.last.Load() }

// Sync runs one cycle now. While another cycle is in flight it returns at
// once with Skipped set. Cycles started by anything but a manual request are
// skipped while the server is known to be unreachable.
func (c *Coordinator) Sync(ctx context.Context, trigger Trigger) *Report {
	if !c.running.CompareAndSwap(false, true) {
		return &Report{Trigger: trigger, Skipped: true}
	}
	defer c.running.Store(false)

	report := &Report{Trigger: trigger, StartedAt: c.now().UTC()}
	if trigger != TriggerManual && trigger != TriggerInitial && !c.monitor.Online() {
		report.Offline = true
		report.FinishedAt = report.StartedAt
		return report
	}

	ctx, end := c.metrics.StartCycle(ctx, string(trigger))
	log := c.log.With("trigger", string(trigger))
	log.Debug("sync started")

	c.setMeta(ctx, report, MetaLastAttempt, report.StartedAt)

	if err := c.recoverInterrupted(ctx); err != nil {
		report.fail("recover", err)
	}
	n, err := c.queue.Backfill(ctx)
	report.Backfilled = n
	if err != nil {
		report.fail("backfill", err)
	}

	c.drain(ctx, report)
	c.reconcile(ctx, report)

	report.FinishedAt = c.now().UTC()
	outcome := "ok"
	if len(report.Errors) == 0 {
		c.setMeta(ctx, report, MetaLastSuccess, report.FinishedAt)
	} else {
		outcome = "error"
	}
	end(outcome)
	c.last.Store(report)

	log.Info("sync finished",
		"delivered", report.Delivered,
		"retried", report.Retried,
		"exhausted", len(report.Exhausted),
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	for _, ex := range report.Exhausted {
		log.Warn("giving up on queued change", "task", ex.TaskID, "operation", string(ex.Operation), "error", ex.Err)
	}
	return report
}

func (c *Coordinator) setMeta(ctx context.Context, report *Report, key string, at time.Time) {
	if err := c.store.SetMetadata(ctx, key, at.Format(time.RFC3339Nano)); err != nil {
		report.fail("metadata", err)
	}
}

// LastSync reads the timestamps of the last attempted and last clean cycle.
// Zero times mean never.
func LastSync(ctx context.Context, store storage.Reader) (attempt, success time.Time, err error) {
	read := func(key string) (time.Time, error) {
		v, err := store.GetMetadata(ctx, key)
		if err != nil || v == "" {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, v)
	}
	if attempt, err = read(MetaLastAttempt); err != nil {
		return
	}
	success, err = read(MetaLastSuccess)
	return
}
