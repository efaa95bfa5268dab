package hive

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskhive/hive/backoff"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Storer is the minimal store interface held by the Coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is an internal interface for subsystem lifecycle
// (scheduler, worker monitor).
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle
// events. hook.Registry satisfies it.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Coordinator is the central object tying together the dispatch
// scheduler, the worker monitor, and the store lifecycle.
//
// Create one with New() and functional options. The Coordinator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Wire the scheduler and monitor with SetScheduler and
// SetMonitor after construction.
type Coordinator struct {
	config Config
	logger *slog.Logger
	store  Storer

	scheduler runner
	monitor   runner

	extensions extensionEmitter

	pingBackoff backoff.Strategy
	pingRetries int

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config:      DefaultConfig(),
		logger:      slog.Default(),
		pingBackoff: backoff.DefaultStrategy(),
		pingRetries: 3,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Coordinator) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// SetScheduler sets the dispatch scheduler.
func (c *Coordinator) SetScheduler(r runner) { c.scheduler = r }

// SetMonitor sets the worker monitor.
func (c *Coordinator) SetMonitor(r runner) { c.monitor = r }

// SetExtensions sets the extension registry notified of coordinator
// lifecycle events. hook.Registry satisfies the interface.
func (c *Coordinator) SetExtensions(e extensionEmitter) { c.extensions = e }

// Start verifies store connectivity, then begins periodic
// reconciliation and worker monitoring.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.scheduler == nil {
		return ErrNoScheduler
	}
	if c.store != nil {
		if err := c.pingStore(ctx); err != nil {
			return err
		}
	}
	if err := c.scheduler.Start(ctx); err != nil {
		return err
	}
	if c.monitor != nil {
		if err := c.monitor.Start(ctx); err != nil {
			return err
		}
	}
	c.started = true
	return nil
}

// pingStore probes the store, retrying with backoff so a briefly
// unreachable backend does not fail startup.
func (c *Coordinator) pingStore(ctx context.Context) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.store.Ping(ctx)
		if err == nil {
			return nil
		}
		if attempt >= c.pingRetries {
			break
		}
		delay := c.pingBackoff.Delay(attempt + 1)
		c.logger.Warn("store ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// Stop gracefully shuts down the coordinator.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.started {
		if c.monitor != nil {
			if err := c.monitor.Stop(ctx); err != nil {
				c.logger.Error("monitor stop error", "error", err)
			}
		}
		if c.scheduler != nil {
			if err := c.scheduler.Stop(ctx); err != nil {
				c.logger.Error("scheduler stop error", "error", err)
			}
		}
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithPollInterval sets the delay between reconciliation ticks.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithDispatchSchedule sets an additional cron trigger for
// reconciliation cycles.
func WithDispatchSchedule(expr string) Option {
	return func(c *Coordinator) error {
		c.config.DispatchSchedule = expr
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = l
		return nil
	}
}

// WithPingBackoff sets the retry strategy and attempt budget used when
// probing store connectivity at startup.
func WithPingBackoff(s backoff.Strategy, retries int) Option {
	return func(c *Coordinator) error {
		c.pingBackoff = s
		c.pingRetries = retries
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Coordinator) error {
		c.store = s
		return nil
	}
}
