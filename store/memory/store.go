package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ task.Store   = (*Store)(nil)
	_ worker.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	tasks   map[string]*task.Task
	workers map[string]*worker.Worker
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks:   make(map[string]*task.Task),
		workers: make(map[string]*worker.Worker),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// CreateTask persists a new task.
func (m *Store) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return hive.ErrTaskAlreadyExists
	}
	cp := *t
	m.tasks[key] = &cp
	return nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, hive.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return hive.ErrTaskNotFound
	}
	cp := *t
	cp.Touch()
	m.tasks[key] = &cp
	return nil
}

// DeleteTask removes a task by ID.
func (m *Store) DeleteTask(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.tasks[key]; !ok {
		return hive.ErrTaskNotFound
	}
	delete(m.tasks, key)
	return nil
}

// ListPendingTasks returns all pending tasks ordered by creation time,
// then ID.
func (m *Store) ListPendingTasks(_ context.Context) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != task.StatePending {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTasks(out)
	return out, nil
}

// AssignTask commits the pairing of a task to a worker: the task moves
// to assigned state and the worker is marked busy, atomically under the
// store lock.
func (m *Store) AssignTask(_ context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return hive.ErrTaskNotFound
	}
	if t.State != task.StatePending {
		return hive.ErrTaskNotPending
	}
	w, ok := m.workers[workerID.String()]
	if !ok {
		return hive.ErrWorkerNotFound
	}
	if w.Busy {
		return hive.ErrWorkerBusy
	}

	now := time.Now().UTC()
	t.State = task.StateAssigned
	t.WorkerID = workerID
	t.AssignedAt = &now
	t.Touch()

	w.Busy = true
	w.TaskID = taskID
	w.Touch()
	return nil
}

// CompleteTask marks an assigned task completed and frees its worker.
func (m *Store) CompleteTask(_ context.Context, taskID id.TaskID) error {
	return m.finishTask(taskID, task.StateCompleted, "")
}

// FailTask marks an assigned task failed and frees its worker.
func (m *Store) FailTask(_ context.Context, taskID id.TaskID, reason string) error {
	return m.finishTask(taskID, task.StateFailed, reason)
}

func (m *Store) finishTask(taskID id.TaskID, final task.State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return hive.ErrTaskNotFound
	}
	if t.State != task.StateAssigned {
		return hive.ErrInvalidState
	}

	now := time.Now().UTC()
	t.State = final
	t.LastError = reason
	t.CompletedAt = &now
	t.Touch()

	if w, ok := m.workers[t.WorkerID.String()]; ok {
		w.Busy = false
		w.TaskID = id.Nil
		w.Touch()
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (m *Store) ListTasksByState(_ context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != state {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTasks(out)

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, t := range m.tasks {
		if opts.State != "" && t.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Worker Store
// ──────────────────────────────────────────────────

// RegisterWorker adds a new worker to the registry.
func (m *Store) RegisterWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, exists := m.workers[key]; exists {
		return hive.ErrWorkerAlreadyExists
	}
	cp := *w
	m.workers[key] = &cp
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return hive.ErrWorkerNotFound
	}
	delete(m.workers, key)
	return nil
}

// GetWorker retrieves a worker by ID.
func (m *Store) GetWorker(_ context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, hive.ErrWorkerNotFound
	}
	cp := *w
	return &cp, nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
// A heartbeat from a lost worker restores it to active.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return hive.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	if w.State == worker.StateLost {
		w.State = worker.StateActive
	}
	w.Touch()
	return nil
}

// ListWorkers returns all registered workers ordered by registration
// time, then ID.
func (m *Store) ListWorkers(_ context.Context) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*worker.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		out = append(out, &cp)
	}
	sortWorkers(out)
	return out, nil
}

// MarkWorkerIdle clears the busy flag and task reference for a worker.
func (m *Store) MarkWorkerIdle(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return hive.ErrWorkerNotFound
	}
	w.Busy = false
	w.TaskID = id.Nil
	w.Touch()
	return nil
}

// ReapStaleWorkers marks workers whose last-seen timestamp is older
// than the threshold as lost and returns them.
func (m *Store) ReapStaleWorkers(_ context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)

	var reaped []*worker.Worker
	for _, w := range m.workers {
		if w.State == worker.StateLost || !w.LastSeen.Before(cutoff) {
			continue
		}
		w.State = worker.StateLost
		w.Touch()
		cp := *w
		reaped = append(reaped, &cp)
	}
	sortWorkers(reaped)
	return reaped, nil
}

// ──────────────────────────────────────────────────
// Ordering
// ──────────────────────────────────────────────────

func sortTasks(tasks []*task.Task) {
	sort.Slice(tasks, func(i, k int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[k].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[k].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[k].ID.String()
	})
}

func sortWorkers(workers []*worker.Worker) {
	sort.Slice(workers, func(i, k int) bool {
		if !workers[i].CreatedAt.Equal(workers[k].CreatedAt) {
			return workers[i].CreatedAt.Before(workers[k].CreatedAt)
		}
		return workers[i].ID.String() < workers[k].ID.String()
	})
}
