package hook

import (
	"context"
	"log/slog"

	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskCreatedEntry struct {
	name string
	hook TaskCreated
}

type taskAssignedEntry struct {
	name string
	hook TaskAssigned
}

type cycleCompletedEntry struct {
	name string
	hook CycleCompleted
}

type cycleFailedEntry struct {
	name string
	hook CycleFailed
}

type workerReapedEntry struct {
	name string
	hook WorkerReaped
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	taskCreated    []taskCreatedEntry
	taskAssigned   []taskAssignedEntry
	cycleCompleted []cycleCompletedEntry
	cycleFailed    []cycleFailedEntry
	workerReaped   []workerReapedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TaskCreated); ok {
		r.taskCreated = append(r.taskCreated, taskCreatedEntry{name, h})
	}
	if h, ok := e.(TaskAssigned); ok {
		r.taskAssigned = append(r.taskAssigned, taskAssignedEntry{name, h})
	}
	if h, ok := e.(CycleCompleted); ok {
		r.cycleCompleted = append(r.cycleCompleted, cycleCompletedEntry{name, h})
	}
	if h, ok := e.(CycleFailed); ok {
		r.cycleFailed = append(r.cycleFailed, cycleFailedEntry{name, h})
	}
	if h, ok := e.(WorkerReaped); ok {
		r.workerReaped = append(r.workerReaped, workerReapedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitTaskCreated notifies all extensions that implement TaskCreated.
func (r *Registry) EmitTaskCreated(ctx context.Context, t *task.Task) {
	for _, e := range r.taskCreated {
		if err := e.hook.OnTaskCreated(ctx, t); err != nil {
			r.logHookError("OnTaskCreated", e.name, err)
		}
	}
}

// EmitTaskAssigned notifies all extensions that implement TaskAssigned.
func (r *Registry) EmitTaskAssigned(ctx context.Context, t *task.Task, w *worker.Worker) {
	for _, e := range r.taskAssigned {
		if err := e.hook.OnTaskAssigned(ctx, t, w); err != nil {
			r.logHookError("OnTaskAssigned", e.name, err)
		}
	}
}

// EmitCycleCompleted notifies all extensions that implement CycleCompleted.
func (r *Registry) EmitCycleCompleted(ctx context.Context, stats CycleStats) {
	for _, e := range r.cycleCompleted {
		if err := e.hook.OnCycleCompleted(ctx, stats); err != nil {
			r.logHookError("OnCycleCompleted", e.name, err)
		}
	}
}

// EmitCycleFailed notifies all extensions that implement CycleFailed.
func (r *Registry) EmitCycleFailed(ctx context.Context, cycleErr error) {
	for _, e := range r.cycleFailed {
		if err := e.hook.OnCycleFailed(ctx, cycleErr); err != nil {
			r.logHookError("OnCycleFailed", e.name, err)
		}
	}
}

// EmitWorkerReaped notifies all extensions that implement WorkerReaped.
func (r *Registry) EmitWorkerReaped(ctx context.Context, w *worker.Worker) {
	for _, e := range r.workerReaped {
		if err := e.hook.OnWorkerReaped(ctx, w); err != nil {
			r.logHookError("OnWorkerReaped", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate to the
// caller; a misbehaving extension must not break dispatch.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
