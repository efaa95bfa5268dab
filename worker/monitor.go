package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhive/hive"
)

// Emitter emits worker lifecycle events.
// hook.Registry satisfies this interface via EmitWorkerReaped.
type Emitter interface {
	EmitWorkerReaped(ctx context.Context, w *Worker)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorInterval sets how often the monitor scans for stale workers.
func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithStaleThreshold sets how long a worker may go without a heartbeat
// before it is marked lost.
func WithStaleThreshold(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.staleThreshold = d }
}

// Monitor periodically marks workers whose heartbeat has expired as
// lost and emits a reap event for each, so the embedder can deregister
// them or alert. A heartbeat restores a lost worker to active. It owns
// its ticker; multiple independent monitors can run in tests.
type Monitor struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger

	interval       time.Duration
	staleThreshold time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewMonitor creates a Monitor.
func NewMonitor(store Store, emitter Emitter, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		store:          store,
		emitter:        emitter,
		logger:         logger,
		interval:       10 * time.Second,
		staleThreshold: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MonitorFromConfig creates a Monitor from a coordinator Config.
// cfg.MonitorInterval and cfg.StaleWorkerThreshold map onto the
// equivalent options. A zero MonitorInterval disables monitoring:
// MonitorFromConfig returns nil, and the caller should skip wiring a
// monitor entirely.
func MonitorFromConfig(store Store, emitter Emitter, logger *slog.Logger, cfg hive.Config, opts ...MonitorOption) *Monitor {
	if cfg.MonitorInterval <= 0 {
		return nil
	}
	fromCfg := make([]MonitorOption, 0, len(opts)+2)
	fromCfg = append(fromCfg, WithMonitorInterval(cfg.MonitorInterval))
	if cfg.StaleWorkerThreshold > 0 {
		fromCfg = append(fromCfg, WithStaleThreshold(cfg.StaleWorkerThreshold))
	}
	return NewMonitor(store, emitter, logger, append(fromCfg, opts...)...)
}

// Start launches the reap loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.reapLoop(m.stopCh)

	m.logger.Info("worker monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("stale_threshold", m.staleThreshold),
	)
	return nil
}

// Stop cancels future scans. Idempotent; safe to call when not started.
func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)

	m.logger.Info("worker monitor stopped")
	return nil
}

func (m *Monitor) reapLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.reapStaleWorkers()
		}
	}
}

func (m *Monitor) reapStaleWorkers() {
	ctx := context.Background()

	stale, err := m.store.ReapStaleWorkers(ctx, m.staleThreshold)
	if err != nil {
		m.logger.Error("reap stale workers error", slog.String("error", err.Error()))
		return
	}

	for _, w := range stale {
		m.logger.Info("reaped stale worker",
			slog.String("worker_id", w.ID.String()),
			slog.String("hostname", w.Hostname),
			slog.Time("last_seen", w.LastSeen),
		)
		if m.emitter != nil {
			m.emitter.EmitWorkerReaped(ctx, w)
		}
	}
}
