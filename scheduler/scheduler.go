package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Store is the minimal persistence surface the scheduler consumes.
// It is the complete boundary contract: the scheduler never touches
// any other store operation.
type Store interface {
	// ListPendingTasks returns the full ordered list of pending tasks.
	ListPendingTasks(ctx context.Context) ([]*task.Task, error)

	// ListWorkers returns the full ordered list of workers.
	ListWorkers(ctx context.Context) ([]*worker.Worker, error)

	// AssignTask commits the pairing of one task to one worker.
	AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error
}

// Emitter emits scheduler lifecycle events.
// hook.Registry satisfies this interface.
type Emitter interface {
	EmitTaskAssigned(ctx context.Context, t *task.Task, w *worker.Worker)
	EmitCycleCompleted(ctx context.Context, stats hook.CycleStats)
	EmitCycleFailed(ctx context.Context, cycleErr error)
}

// Governor rate-limits assignment commits. limit.Governor satisfies
// this interface. A nil Governor means unlimited.
type Governor interface {
	// Allow reports whether one more assignment may be committed to a
	// worker in the given pool right now.
	Allow(pool string) bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets the delay between the end of scheduling one
// tick and the firing of the next.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithDispatchSchedule adds a cron trigger: RunOnce fires at the times
// given by expr (standard 5-field cron or descriptors like
// "@every 30s") in addition to the interval ticker. The expression is
// parsed at Start.
func WithDispatchSchedule(expr string) Option {
	return func(s *Scheduler) { s.scheduleExpr = expr }
}

// WithGovernor sets the assignment rate governor.
func WithGovernor(g Governor) Option {
	return func(s *Scheduler) { s.governor = g }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler reconciles idle workers with pending tasks on a fixed
// cadence, committing at most one assignment per idle worker per
// cycle. At most one reconciliation cycle runs at a time; ticks that
// arrive while a cycle is in flight are dropped, not queued.
//
// The Scheduler holds no task or worker state between cycles — the
// store is the single source of truth both before and after a cycle.
type Scheduler struct {
	store    Store
	emitter  Emitter
	governor Governor
	logger   *slog.Logger

	pollInterval time.Duration
	scheduleExpr string

	// inFlight is the reentrancy guard bounding one cycle.
	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a Scheduler. emitter may be nil.
func New(store Store, emitter Emitter, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		emitter:      emitter,
		logger:       logger,
		pollInterval: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a Scheduler from a coordinator Config.
// cfg.PollInterval and cfg.DispatchSchedule map onto the equivalent
// options; zero or empty fields keep the defaults. Extra opts apply on
// top and win.
func FromConfig(store Store, emitter Emitter, logger *slog.Logger, cfg hive.Config, opts ...Option) *Scheduler {
	fromCfg := make([]Option, 0, len(opts)+2)
	if cfg.PollInterval > 0 {
		fromCfg = append(fromCfg, WithPollInterval(cfg.PollInterval))
	}
	if cfg.DispatchSchedule != "" {
		fromCfg = append(fromCfg, WithDispatchSchedule(cfg.DispatchSchedule))
	}
	return New(store, emitter, logger, append(fromCfg, opts...)...)
}

// Start begins periodic reconciliation. The first cycle runs after one
// poll interval has elapsed; Start does not itself perform a cycle.
// Calling Start while already started is a no-op.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.pollInterval <= 0 {
		return fmt.Errorf("hive/scheduler: poll interval must be positive, got %v", s.pollInterval)
	}

	var sched cronlib.Schedule
	if s.scheduleExpr != "" {
		parsed, err := ParseSchedule(s.scheduleExpr)
		if err != nil {
			return fmt.Errorf("hive/scheduler: parse dispatch schedule %q: %w", s.scheduleExpr, err)
		}
		sched = parsed
	}

	s.running = true
	s.stopCh = make(chan struct{})

	go s.tickLoop(s.stopCh)
	if sched != nil {
		go s.cronLoop(s.stopCh, sched)
	}

	s.logger.Info("dispatch scheduler started",
		slog.Duration("poll_interval", s.pollInterval),
	)
	return nil
}

// Stop cancels future ticks and returns immediately. It does not wait
// for an in-flight cycle to finish and does not clear the in-flight
// flag; a cycle already running commits its remaining assignments.
// Idempotent; safe to call when not started. The scheduler can be
// started again afterwards.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	s.logger.Info("dispatch scheduler stopped")
	return nil
}

// tickLoop fires a reconciliation cycle on each poll interval.
func (s *Scheduler) tickLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := s.RunOnce(context.Background()); err != nil {
				s.logger.Error("reconciliation cycle error", slog.String("error", err.Error()))
			}
		}
	}
}

// cronLoop fires a reconciliation cycle at each cron schedule time.
func (s *Scheduler) cronLoop(stopCh chan struct{}, sched cronlib.Schedule) {
	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.RunOnce(context.Background()); err != nil {
				s.logger.Error("scheduled cycle error", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs exactly one reconciliation cycle, independent of
// the timer. If a cycle is already in flight the call returns nil
// immediately without fetching anything: the tick is dropped, not
// deferred.
//
// Within a cycle, assignment commits are strictly sequential in
// list-positional order: tasks[i] is paired with the i-th idle worker
// as returned by the store. If a commit fails, the remaining pairs are
// not attempted; the unassigned tasks and workers stay eligible and
// are re-paired on the next cycle.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	// Cleared unconditionally so a later cycle can always proceed.
	defer s.inFlight.Store(false)

	start := time.Now()

	var (
		tasks   []*task.Task
		workers []*worker.Worker
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = s.store.ListPendingTasks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		workers, err = s.store.ListWorkers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if s.emitter != nil {
			s.emitter.EmitCycleFailed(ctx, err)
		}
		return fmt.Errorf("hive/scheduler: fetch: %w", err)
	}

	idle := make([]*worker.Worker, 0, len(workers))
	for _, w := range workers {
		if !w.Busy {
			idle = append(idle, w)
		}
	}

	stats := hook.CycleStats{PendingTasks: len(tasks), IdleWorkers: len(idle)}

	if len(idle) == 0 || len(tasks) == 0 {
		stats.Elapsed = time.Since(start)
		if s.emitter != nil {
			s.emitter.EmitCycleCompleted(ctx, stats)
		}
		return nil
	}

	n := min(len(idle), len(tasks))
	for i := range n {
		t, w := tasks[i], idle[i]

		if s.governor != nil && !s.governor.Allow(w.Pool) {
			s.logger.Debug("assignment governor denied token, ending cycle",
				slog.String("pool", w.Pool),
				slog.Int("assigned", stats.Assigned),
			)
			break
		}

		if err := s.store.AssignTask(ctx, t.ID, w.ID); err != nil {
			if s.emitter != nil {
				s.emitter.EmitCycleFailed(ctx, err)
			}
			return fmt.Errorf("hive/scheduler: assign task %s to worker %s: %w", t.ID, w.ID, err)
		}

		stats.Assigned++
		if s.emitter != nil {
			s.emitter.EmitTaskAssigned(ctx, t, w)
		}
		s.logger.Debug("task assigned",
			slog.String("task_id", t.ID.String()),
			slog.String("worker_id", w.ID.String()),
		)
	}

	stats.Elapsed = time.Since(start)
	if s.emitter != nil {
		s.emitter.EmitCycleCompleted(ctx, stats)
	}
	return nil
}
