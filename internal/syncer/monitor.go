package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Prober checks whether the server is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor tracks reachability of the server. While online it probes every
// interval; once a probe fails it probes again on an exponential schedule
// until the server answers, then reports the reconnect.
type Monitor struct {
	prober      Prober
	interval    time.Duration
	log         *slog.Logger
	online      atomic.Bool
	onReconnect func()
	wake        chan struct{}
}

// NewMonitor creates a monitor that assumes the server is reachable until a
// probe says otherwise.
func NewMonitor(prober Prober, interval time.Duration, log *slog.Logger, onReconnect func()) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if onReconnect == nil {
		onReconnect = func() {}
	}
	m := &Monitor{
		prober:      prober,
		interval:    interval,
		log:         log,
		onReconnect: onReconnect,
		wake:        make(chan struct{}, 1),
	}
	m.online.Store(true)
	return m
}

// Online reports the last known reachability.
func (m *Monitor) Online() bool { return m.online.Load() }

// MarkOffline records a connection failure seen outside the monitor, so
// probing switches to the offline schedule right away.
func (m *Monitor) MarkOffline() {
	if m.online.CompareAndSwap(true, false) {
		m.log.Info("server unreachable, pausing sync")
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// markOnline records a successful call made outside the monitor. It does not
// count as a reconnect since the caller is already syncing.
func (m *Monitor) markOnline() {
	m.online.Store(true)
}

// Check probes once and updates state. It reports whether the server is
// reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.prober.Probe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return m.Online()
		}
		if m.online.CompareAndSwap(true, false) {
			m.log.Info("server unreachable, pausing sync", "error", err)
		}
		return false
	}
	if m.online.CompareAndSwap(false, true) {
		m.log.Info("server reachable again")
		m.onReconnect()
	}
	return true
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	retry := newProbeBackoff(m.interval)
	for {
		var wait time.Duration
		if m.Check(ctx) {
			retry.Reset()
			wait = m.interval
		} else {
			wait = retry.NextBackOff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.wake:
			timer.Stop()
			retry.Reset()
		case <-timer.C:
		}
	}
}

// newProbeBackoff probes an unreachable server after 1s, 2s, 4s... up to
// the regular interval.
func newProbeBackoff(ceiling time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(time.Second, ceiling)
	b.MaxInterval = ceiling
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
