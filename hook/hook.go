// Package hook defines the extension system for hive.
// Extensions are notified of lifecycle events (task created, assignment
// committed, cycle completed, etc.) and can react to them — logging,
// metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// CycleStats summarizes one completed reconciliation cycle.
type CycleStats struct {
	// PendingTasks is the number of pending tasks fetched at the start
	// of the cycle.
	PendingTasks int
	// IdleWorkers is the number of idle workers fetched at the start of
	// the cycle.
	IdleWorkers int
	// Assigned is the number of assignments committed.
	Assigned int
	// Elapsed is the wall-clock duration of the cycle.
	Elapsed time.Duration
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskCreated is called after a task is successfully created.
type TaskCreated interface {
	OnTaskCreated(ctx context.Context, t *task.Task) error
}

// TaskAssigned is called after the scheduler commits an assignment.
type TaskAssigned interface {
	OnTaskAssigned(ctx context.Context, t *task.Task, w *worker.Worker) error
}

// ──────────────────────────────────────────────────
// Cycle lifecycle hooks
// ──────────────────────────────────────────────────

// CycleCompleted is called after a reconciliation cycle finishes
// cleanly, including cycles that committed zero assignments.
type CycleCompleted interface {
	OnCycleCompleted(ctx context.Context, stats CycleStats) error
}

// CycleFailed is called when a reconciliation cycle aborts on a store
// fetch or assignment failure.
type CycleFailed interface {
	OnCycleFailed(ctx context.Context, cycleErr error) error
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerReaped is called when the monitor marks a worker lost.
type WorkerReaped interface {
	OnWorkerReaped(ctx context.Context, w *worker.Worker) error
}

// Shutdown is called when the coordinator stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
