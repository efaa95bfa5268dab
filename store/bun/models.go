package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// ── Task model ────────────────────────────────────────────────────

type taskModel struct {
	bun.BaseModel `bun:"table:hive_tasks"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	Payload     []byte     `bun:"payload,type:bytea"`
	State       string     `bun:"state,notnull,default:'pending'"`
	WorkerID    string     `bun:"worker_id"`
	LastError   string     `bun:"last_error"`
	AssignedAt  *time.Time `bun:"assigned_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTaskModel(t *task.Task) *taskModel {
	return &taskModel{
		ID:          t.ID.String(),
		Name:        t.Name,
		Payload:     t.Payload,
		State:       string(t.State),
		WorkerID:    t.WorkerID.String(),
		LastError:   t.LastError,
		AssignedAt:  t.AssignedAt,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*task.Task, error) {
	parsedID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hive/bun: parse task id %q: %w", m.ID, err)
	}

	t := &task.Task{
		Entity: hive.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		Payload:     m.Payload,
		State:       task.State(m.State),
		LastError:   m.LastError,
		AssignedAt:  m.AssignedAt,
		CompletedAt: m.CompletedAt,
	}

	if m.WorkerID != "" {
		parsedWorker, workerErr := id.ParseWorkerID(m.WorkerID)
		if workerErr == nil {
			t.WorkerID = parsedWorker
		}
	}

	return t, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	bun.BaseModel `bun:"table:hive_workers"`

	ID        string            `bun:"id,pk"`
	Hostname  string            `bun:"hostname,notnull"`
	Pool      string            `bun:"pool"`
	Busy      bool              `bun:"busy,notnull,default:false"`
	State     string            `bun:"state,notnull,default:'active'"`
	TaskID    string            `bun:"task_id"`
	Metadata  map[string]string `bun:"metadata,type:jsonb"`
	LastSeen  time.Time         `bun:"last_seen,notnull,default:current_timestamp"`
	CreatedAt time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

func toWorkerModel(w *worker.Worker) *workerModel {
	return &workerModel{
		ID:        w.ID.String(),
		Hostname:  w.Hostname,
		Pool:      w.Pool,
		Busy:      w.Busy,
		State:     string(w.State),
		TaskID:    w.TaskID.String(),
		Metadata:  w.Metadata,
		LastSeen:  w.LastSeen,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func fromWorkerModel(m *workerModel) (*worker.Worker, error) {
	parsedID, err := id.ParseWorkerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hive/bun: parse worker id %q: %w", m.ID, err)
	}

	w := &worker.Worker{
		Entity: hive.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       parsedID,
		Hostname: m.Hostname,
		Pool:     m.Pool,
		Busy:     m.Busy,
		State:    worker.State(m.State),
		Metadata: m.Metadata,
		LastSeen: m.LastSeen,
	}

	if m.TaskID != "" {
		parsedTask, taskErr := id.ParseTaskID(m.TaskID)
		if taskErr == nil {
			w.TaskID = parsedTask
		}
	}

	return w, nil
}
