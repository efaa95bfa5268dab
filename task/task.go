package task

import (
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
)

// State represents the lifecycle state of a task.
type State string

const (
	// StatePending means the task is waiting to be assigned to a worker.
	StatePending State = "pending"
	// StateAssigned means the task has been paired with a worker.
	StateAssigned State = "assigned"
	// StateCompleted means the assigned worker finished the task.
	StateCompleted State = "completed"
	// StateFailed means the task failed terminally.
	StateFailed State = "failed"
)

// Task represents a unit of work to be dispatched to a worker.
// The scheduler only reads tasks and requests assignment; it never
// creates, deletes, or mutates a task's other fields.
type Task struct {
	hive.Entity

	ID          id.TaskID   `json:"id"`
	Name        string      `json:"name"`
	Payload     []byte      `json:"payload,omitempty"`
	State       State       `json:"state"`
	WorkerID    id.WorkerID `json:"worker_id,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	AssignedAt  *time.Time  `json:"assigned_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
