package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
)

// Emitter receives task lifecycle notifications from the service.
// hook.Registry satisfies it.
type Emitter interface {
	EmitTaskCreated(ctx context.Context, t *Task)
}

// Service provides high-level task operations over a Store. It is the
// write path for embedders submitting work: the scheduler itself never
// creates tasks.
type Service struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
}

// NewService creates a task service. emitter may be nil.
func NewService(store Store, emitter Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, emitter: emitter, logger: logger}
}

// Submit builds a pending task, persists it, and notifies extensions.
func (s *Service) Submit(ctx context.Context, name string, payload []byte) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("hive/task: submit: task name is required")
	}
	t := &Task{
		Entity:  hive.NewEntity(),
		ID:      id.NewTaskID(),
		Name:    name,
		Payload: payload,
		State:   StatePending,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Debug("task submitted",
		slog.String("task_id", t.ID.String()),
		slog.String("name", t.Name),
	)
	if s.emitter != nil {
		s.emitter.EmitTaskCreated(ctx, t)
	}
	return t, nil
}

// Cancel deletes a task that has not yet been assigned.
func (s *Service) Cancel(ctx context.Context, taskID id.TaskID) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.State != StatePending {
		return fmt.Errorf("hive/task: cancel %s in state %q: %w", taskID, t.State, hive.ErrTaskNotPending)
	}
	return s.store.DeleteTask(ctx, taskID)
}

// TaskStore returns the underlying store for direct access to reads
// and state transitions.
func (s *Service) TaskStore() Store {
	return s.store
}
