package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/scheduler"
	"github.com/taskhive/hive/store/memory"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// ──────────────────────────────────────────────────
// Stub store
// ──────────────────────────────────────────────────

type assignCall struct {
	TaskID   id.TaskID
	WorkerID id.WorkerID
}

// stubStore records scheduler calls and allows failure injection and
// blocking fetches.
type stubStore struct {
	mu      sync.Mutex
	tasks   []*task.Task
	workers []*worker.Worker
	assigns []assignCall

	taskFetches   int
	workerFetches int

	// assignFailAt makes the AssignTask attempt at that position
	// (0-based, counted across the store's lifetime) fail. -1 disables.
	assignFailAt   int
	assignAttempts int

	// fetchErr, when set, is returned by ListPendingTasks.
	fetchErr error

	// fetchGate, when non-nil, blocks both fetches until closed.
	fetchGate chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{assignFailAt: -1}
}

func (s *stubStore) ListPendingTasks(_ context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	s.taskFetches++
	gate := s.fetchGate
	err := s.fetchErr
	out := make([]*task.Task, len(s.tasks))
	copy(out, s.tasks)
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *stubStore) ListWorkers(_ context.Context) ([]*worker.Worker, error) {
	s.mu.Lock()
	s.workerFetches++
	gate := s.fetchGate
	out := make([]*worker.Worker, len(s.workers))
	copy(out, s.workers)
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return out, nil
}

func (s *stubStore) AssignTask(_ context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.assignAttempts
	s.assignAttempts++
	if s.assignFailAt >= 0 && pos == s.assignFailAt {
		return errors.New("assign rejected")
	}
	s.assigns = append(s.assigns, assignCall{TaskID: taskID, WorkerID: workerID})
	return nil
}

func (s *stubStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignAttempts
}

func (s *stubStore) assignCalls() []assignCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assignCall, len(s.assigns))
	copy(out, s.assigns)
	return out
}

func (s *stubStore) taskFetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskFetches
}

func (s *stubStore) workerFetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerFetches
}

// ──────────────────────────────────────────────────
// Stub emitter
// ──────────────────────────────────────────────────

type stubEmitter struct {
	mu        sync.Mutex
	assigned  []assignCall
	completed []hook.CycleStats
	failed    []error
}

func (e *stubEmitter) EmitTaskAssigned(_ context.Context, t *task.Task, w *worker.Worker) {
	e.mu.Lock()
	e.assigned = append(e.assigned, assignCall{TaskID: t.ID, WorkerID: w.ID})
	e.mu.Unlock()
}

func (e *stubEmitter) EmitCycleCompleted(_ context.Context, stats hook.CycleStats) {
	e.mu.Lock()
	e.completed = append(e.completed, stats)
	e.mu.Unlock()
}

func (e *stubEmitter) EmitCycleFailed(_ context.Context, cycleErr error) {
	e.mu.Lock()
	e.failed = append(e.failed, cycleErr)
	e.mu.Unlock()
}

func (e *stubEmitter) lastCompleted() (hook.CycleStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.completed) == 0 {
		return hook.CycleStats{}, false
	}
	return e.completed[len(e.completed)-1], true
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func pendingTask(name string) *task.Task {
	return &task.Task{
		Entity: hive.NewEntity(),
		ID:     id.NewTaskID(),
		Name:   name,
		State:  task.StatePending,
	}
}

func idleWorker(host string) *worker.Worker {
	return &worker.Worker{
		Entity:   hive.NewEntity(),
		ID:       id.NewWorkerID(),
		Hostname: host,
		State:    worker.StateActive,
		LastSeen: time.Now().UTC(),
	}
}

func busyWorker(host string) *worker.Worker {
	w := idleWorker(host)
	w.Busy = true
	return w
}

// ──────────────────────────────────────────────────
// Reconciliation tests
// ──────────────────────────────────────────────────

func TestRunOnce_PositionalPairing(t *testing.T) {
	s := newStubStore()
	t1, t2, t3 := pendingTask("t1"), pendingTask("t2"), pendingTask("t3")
	w1, w2 := idleWorker("w1"), idleWorker("w2")
	s.tasks = []*task.Task{t1, t2, t3}
	s.workers = []*worker.Worker{w1, w2}

	sched := scheduler.New(s, nil, nil)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	calls := s.assignCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d assignments, want 2", len(calls))
	}
	if calls[0].TaskID != t1.ID || calls[0].WorkerID != w1.ID {
		t.Errorf("assignment 0 = (%s, %s), want (%s, %s)",
			calls[0].TaskID, calls[0].WorkerID, t1.ID, w1.ID)
	}
	if calls[1].TaskID != t2.ID || calls[1].WorkerID != w2.ID {
		t.Errorf("assignment 1 = (%s, %s), want (%s, %s)",
			calls[1].TaskID, calls[1].WorkerID, t2.ID, w2.ID)
	}
}

func TestRunOnce_AssignmentCountIsMin(t *testing.T) {
	tests := []struct {
		name    string
		tasks   int
		idle    int
		busy    int
		want    int
	}{
		{"more tasks than workers", 5, 3, 0, 3},
		{"more workers than tasks", 2, 4, 1, 2},
		{"equal", 3, 3, 0, 3},
		{"single pair", 1, 1, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStubStore()
			for i := range tt.tasks {
				s.tasks = append(s.tasks, pendingTask(fmt.Sprintf("t%d", i)))
			}
			for i := range tt.idle {
				s.workers = append(s.workers, idleWorker(fmt.Sprintf("idle%d", i)))
			}
			for i := range tt.busy {
				s.workers = append(s.workers, busyWorker(fmt.Sprintf("busy%d", i)))
			}

			sched := scheduler.New(s, nil, nil)
			if err := sched.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if got := len(s.assignCalls()); got != tt.want {
				t.Errorf("assignments = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunOnce_SkipsBusyWorkersPreservingOrder(t *testing.T) {
	s := newStubStore()
	t1, t2 := pendingTask("t1"), pendingTask("t2")
	w1 := busyWorker("w1")
	w2 := idleWorker("w2")
	w3 := busyWorker("w3")
	w4 := idleWorker("w4")
	s.tasks = []*task.Task{t1, t2}
	s.workers = []*worker.Worker{w1, w2, w3, w4}

	sched := scheduler.New(s, nil, nil)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	calls := s.assignCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d assignments, want 2", len(calls))
	}
	if calls[0].WorkerID != w2.ID {
		t.Errorf("assignment 0 worker = %s, want %s (first idle)", calls[0].WorkerID, w2.ID)
	}
	if calls[1].WorkerID != w4.ID {
		t.Errorf("assignment 1 worker = %s, want %s (second idle)", calls[1].WorkerID, w4.ID)
	}
}

func TestRunOnce_NoIdleWorkers(t *testing.T) {
	s := newStubStore()
	s.tasks = []*task.Task{pendingTask("t1")}
	s.workers = []*worker.Worker{busyWorker("w1"), busyWorker("w2")}

	emitter := &stubEmitter{}
	sched := scheduler.New(s, emitter, nil)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(s.assignCalls()) != 0 {
		t.Errorf("expected 0 assignments, got %d", len(s.assignCalls()))
	}

	stats, ok := emitter.lastCompleted()
	if !ok {
		t.Fatal("expected a CycleCompleted event")
	}
	if stats.Assigned != 0 || stats.IdleWorkers != 0 || stats.PendingTasks != 1 {
		t.Errorf("stats = %+v, want 0 assigned, 0 idle, 1 pending", stats)
	}
}

func TestRunOnce_NoPendingTasks(t *testing.T) {
	s := newStubStore()
	s.workers = []*worker.Worker{idleWorker("w1")}

	sched := scheduler.New(s, nil, nil)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(s.assignCalls()) != 0 {
		t.Errorf("expected 0 assignments, got %d", len(s.assignCalls()))
	}
}

func TestRunOnce_ReentrantCallIsDropped(t *testing.T) {
	s := newStubStore()
	s.tasks = []*task.Task{pendingTask("t1")}
	s.workers = []*worker.Worker{idleWorker("w1")}
	s.fetchGate = make(chan struct{})

	sched := scheduler.New(s, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.RunOnce(context.Background()); err != nil {
			t.Errorf("first RunOnce: %v", err)
		}
	}()

	// Wait until the first cycle is blocked inside its fetches.
	deadline := time.After(2 * time.Second)
	for s.taskFetchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first cycle to start")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	// Second call must perform no fetch and no assignment.
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("reentrant RunOnce: %v", err)
	}
	if got := s.taskFetchCount(); got != 1 {
		t.Errorf("task fetches = %d, want 1 (reentrant call must not fetch)", got)
	}
	if got := s.workerFetchCount(); got != 1 {
		t.Errorf("worker fetches = %d, want 1 (reentrant call must not fetch)", got)
	}

	close(s.fetchGate)
	wg.Wait()

	if len(s.assignCalls()) != 1 {
		t.Errorf("assignments = %d, want 1 (from the first cycle only)", len(s.assignCalls()))
	}
}

func TestRunOnce_PartialFailureStopsRemainingPairs(t *testing.T) {
	s := newStubStore()
	t1, t2 := pendingTask("t1"), pendingTask("t2")
	w1, w2 := idleWorker("w1"), idleWorker("w2")
	s.tasks = []*task.Task{t1, t2}
	s.workers = []*worker.Worker{w1, w2}
	s.assignFailAt = 0

	emitter := &stubEmitter{}
	sched := scheduler.New(s, emitter, nil)

	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error from failed assignment")
	}
	if got := s.attemptCount(); got != 1 {
		t.Errorf("assignment attempts = %d, want 1 ((t2,w2) must never be attempted)", got)
	}
	if len(emitter.failed) != 1 {
		t.Errorf("CycleFailed events = %d, want 1", len(emitter.failed))
	}

	// The in-flight flag must be clear: a follow-up cycle proceeds and
	// re-pairs everything (the stub only failed the first lifetime call).
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("follow-up RunOnce: %v", err)
	}
	calls := s.assignCalls()
	if len(calls) != 2 {
		t.Fatalf("assignments after retry cycle = %d, want 2", len(calls))
	}
	if calls[0].TaskID != t1.ID || calls[0].WorkerID != w1.ID {
		t.Errorf("re-pairing: assignment 0 = (%s, %s), want (%s, %s)",
			calls[0].TaskID, calls[0].WorkerID, t1.ID, w1.ID)
	}
}

func TestRunOnce_MidListFailure(t *testing.T) {
	s := newStubStore()
	for i := range 4 {
		s.tasks = append(s.tasks, pendingTask(fmt.Sprintf("t%d", i)))
		s.workers = append(s.workers, idleWorker(fmt.Sprintf("w%d", i)))
	}
	s.assignFailAt = 2

	sched := scheduler.New(s, nil, nil)
	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error from failed assignment")
	}
	if got := len(s.assignCalls()); got != 2 {
		t.Errorf("committed assignments = %d, want 2 (successes before the failure)", got)
	}
	if got := s.attemptCount(); got != 3 {
		t.Errorf("assignment attempts = %d, want 3 (position 3 never attempted)", got)
	}
}

func TestRunOnce_FetchErrorAbortsCycle(t *testing.T) {
	s := newStubStore()
	s.tasks = []*task.Task{pendingTask("t1")}
	s.workers = []*worker.Worker{idleWorker("w1")}
	s.fetchErr = errors.New("store unavailable")

	emitter := &stubEmitter{}
	sched := scheduler.New(s, emitter, nil)

	if err := sched.RunOnce(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(s.assignCalls()) != 0 {
		t.Errorf("expected 0 assignments after fetch failure, got %d", len(s.assignCalls()))
	}

	// In-flight flag cleared; a healed store lets the next cycle work.
	s.mu.Lock()
	s.fetchErr = nil
	s.mu.Unlock()
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after heal: %v", err)
	}
	if len(s.assignCalls()) != 1 {
		t.Errorf("assignments = %d, want 1", len(s.assignCalls()))
	}
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStart_Idempotent(t *testing.T) {
	s := newStubStore()
	sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(50*time.Millisecond))

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	time.Sleep(225 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// One ticker at 50ms over ~225ms fires ~4 times; a duplicate ticker
	// would roughly double that.
	got := s.taskFetchCount()
	if got < 2 || got > 6 {
		t.Errorf("cycles = %d, want ~4 (single ticker)", got)
	}
}

func TestStop_IdempotentAndSafeWhenNotStarted(t *testing.T) {
	s := newStubStore()
	sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(20*time.Millisecond))

	ctx := context.Background()
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStart_NoImmediateCycle(t *testing.T) {
	s := newStubStore()
	sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(200*time.Millisecond))

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := s.taskFetchCount(); got != 0 {
		t.Errorf("cycles before first interval = %d, want 0", got)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_Restartable(t *testing.T) {
	s := newStubStore()
	sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(30*time.Millisecond))

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	afterFirst := s.taskFetchCount()
	if afterFirst == 0 {
		t.Fatal("expected at least one cycle in first run")
	}

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}

	if got := s.taskFetchCount(); got <= afterFirst {
		t.Errorf("cycles after restart = %d, want > %d", got, afterFirst)
	}
}

func TestTickLoop_SurvivesFailingCycles(t *testing.T) {
	s := newStubStore()
	s.fetchErr = errors.New("store down")
	sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(30*time.Millisecond))

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The timer keeps ticking; failed cycles never stop the scheduler.
	if got := s.taskFetchCount(); got < 2 {
		t.Errorf("cycles = %d, want >= 2 despite failures", got)
	}
}

func TestStart_DispatchSchedule(t *testing.T) {
	s := newStubStore()
	// Poll interval far in the future so only the cron trigger fires.
	sched := scheduler.New(s, nil, nil,
		scheduler.WithPollInterval(time.Hour),
		scheduler.WithDispatchSchedule("@every 50ms"),
	)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(180 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := s.taskFetchCount(); got < 2 {
		t.Errorf("cron-triggered cycles = %d, want >= 2", got)
	}
}

func TestStart_InvalidDispatchSchedule(t *testing.T) {
	s := newStubStore()
	sched := scheduler.New(s, nil, nil, scheduler.WithDispatchSchedule("not-a-cron"))

	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid dispatch schedule")
	}
}

func TestStart_NonPositivePollInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		s := newStubStore()
		sched := scheduler.New(s, nil, nil, scheduler.WithPollInterval(interval))

		if err := sched.Start(context.Background()); err == nil {
			t.Errorf("Start with poll interval %v: expected error", interval)
		}
	}
}

func TestFromConfig_AppliesPollInterval(t *testing.T) {
	s := newStubStore()
	cfg := hive.Config{PollInterval: 30 * time.Millisecond}
	sched := scheduler.FromConfig(s, nil, nil, cfg)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := s.taskFetchCount(); got < 2 {
		t.Errorf("polled cycles = %d, want >= 2", got)
	}
}

func TestFromConfig_AppliesDispatchSchedule(t *testing.T) {
	s := newStubStore()
	cfg := hive.Config{PollInterval: time.Hour, DispatchSchedule: "not-a-cron"}
	sched := scheduler.FromConfig(s, nil, nil, cfg)

	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected Start to reject the configured schedule")
	}
}

func TestFromConfig_ZeroFieldsKeepDefaults(t *testing.T) {
	s := newStubStore()
	sched := scheduler.FromConfig(s, nil, nil, hive.Config{})

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start with zero config: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := scheduler.ParseSchedule("@every 30s")
	if err != nil {
		t.Fatalf("ParseSchedule(@every 30s): %v", err)
	}
	now := time.Now().UTC()
	if next := sched.Next(now); !next.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next)
	}

	if _, err := scheduler.ParseSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("ParseSchedule(*/5 * * * *): %v", err)
	}

	if _, err := scheduler.ParseSchedule("bogus"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

// ──────────────────────────────────────────────────
// Governor
// ──────────────────────────────────────────────────

// stingyGovernor allows a fixed number of assignments, then denies.
type stingyGovernor struct {
	mu     sync.Mutex
	budget int
}

func (g *stingyGovernor) Allow(_ string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.budget == 0 {
		return false
	}
	g.budget--
	return true
}

func TestRunOnce_GovernorEndsCycleEarly(t *testing.T) {
	s := newStubStore()
	for i := range 3 {
		s.tasks = append(s.tasks, pendingTask(fmt.Sprintf("t%d", i)))
		s.workers = append(s.workers, idleWorker(fmt.Sprintf("w%d", i)))
	}

	sched := scheduler.New(s, nil, nil, scheduler.WithGovernor(&stingyGovernor{budget: 1}))
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := len(s.assignCalls()); got != 1 {
		t.Errorf("assignments = %d, want 1 (governor budget)", got)
	}
}

// ──────────────────────────────────────────────────
// Memory store integration
// ──────────────────────────────────────────────────

func TestRunOnce_AgainstMemoryStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var taskIDs []id.TaskID
	for i := range 3 {
		tk := pendingTask(fmt.Sprintf("task-%d", i))
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		taskIDs = append(taskIDs, tk.ID)
	}
	var workerIDs []id.WorkerID
	for i := range 2 {
		w := idleWorker(fmt.Sprintf("host-%d", i))
		if err := s.RegisterWorker(ctx, w); err != nil {
			t.Fatalf("RegisterWorker: %v", err)
		}
		workerIDs = append(workerIDs, w.ID)
	}

	emitter := &stubEmitter{}
	sched := scheduler.New(s, emitter, nil)
	if err := sched.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	stats, ok := emitter.lastCompleted()
	if !ok {
		t.Fatal("expected a CycleCompleted event")
	}
	if stats.Assigned != 2 {
		t.Errorf("assigned = %d, want 2", stats.Assigned)
	}

	// Both workers are now busy; the third task is still pending.
	for _, wid := range workerIDs {
		w, err := s.GetWorker(ctx, wid)
		if err != nil {
			t.Fatalf("GetWorker: %v", err)
		}
		if !w.Busy {
			t.Errorf("worker %s not busy after assignment", wid)
		}
	}
	third, err := s.GetTask(ctx, taskIDs[2])
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if third.State != task.StatePending {
		t.Errorf("third task state = %q, want pending", third.State)
	}

	// A second cycle finds no idle workers and commits nothing.
	if err := sched.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	stats, _ = emitter.lastCompleted()
	if stats.Assigned != 0 {
		t.Errorf("second cycle assigned = %d, want 0", stats.Assigned)
	}

	// Completing a task frees its worker for the next cycle.
	if err := s.CompleteTask(ctx, taskIDs[0]); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := sched.RunOnce(ctx); err != nil {
		t.Fatalf("third RunOnce: %v", err)
	}
	stats, _ = emitter.lastCompleted()
	if stats.Assigned != 1 {
		t.Errorf("third cycle assigned = %d, want 1", stats.Assigned)
	}
}
