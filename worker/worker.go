package worker

import (
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
)

// State represents the lifecycle state of a worker.
type State string

const (
	// StateActive means the worker is healthy and eligible for work.
	StateActive State = "active"
	// StateDraining means the worker is finishing its current task
	// but not accepting new assignments (graceful shutdown).
	StateDraining State = "draining"
	// StateLost means the worker has stopped heartbeating and should
	// not receive new assignments.
	StateLost State = "lost"
)

// Worker represents a registered worker instance. The Busy flag is the
// sole eligibility signal the scheduler consults: a worker with
// Busy=false is idle and may receive one assignment per cycle.
type Worker struct {
	hive.Entity

	ID       id.WorkerID       `json:"id"`
	Hostname string            `json:"hostname"`
	Pool     string            `json:"pool,omitempty"`
	Busy     bool              `json:"busy"`
	State    State             `json:"state"`
	TaskID   id.TaskID         `json:"task_id,omitempty"`
	LastSeen time.Time         `json:"last_seen"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
