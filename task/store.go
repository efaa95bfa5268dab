package task

import (
	"context"

	"github.com/taskhive/hive/id"
)

// ListOpts controls pagination for task list queries.
type ListOpts struct {
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// State filters by task state. Empty means all states.
	State State
}

// Store defines the persistence contract for tasks.
type Store interface {
	// CreateTask persists a new task in pending state.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// UpdateTask persists changes to an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// DeleteTask removes a task by ID.
	DeleteTask(ctx context.Context, taskID id.TaskID) error

	// ListPendingTasks returns all pending tasks ordered by creation
	// time, then ID. The ordering is stable so positional pairing by
	// the scheduler is deterministic.
	ListPendingTasks(ctx context.Context) ([]*Task, error)

	// AssignTask commits the pairing of a task to a worker: the task
	// moves to assigned state and the worker is marked busy, atomically
	// with respect to other store writers.
	AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error

	// CompleteTask marks an assigned task completed and frees its worker.
	CompleteTask(ctx context.Context, taskID id.TaskID) error

	// FailTask marks an assigned task failed, records the error message,
	// and frees its worker.
	FailTask(ctx context.Context, taskID id.TaskID, reason string) error

	// ListTasksByState returns tasks matching the given state.
	ListTasksByState(ctx context.Context, state State, opts ListOpts) ([]*Task, error)

	// CountTasks returns the number of tasks matching the given options.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)
}
