package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
)

// CreateTask stores the task as a Hash and adds it to the ID set.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return hive.ErrTaskAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, taskToMap(t))
	pipe.SAdd(ctx, taskIDsKey, tID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.getTaskByKey(ctx, taskKey(taskID.String()))
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	key := taskKey(t.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: update task exists: %w", err)
	}
	if exists == 0 {
		return hive.ErrTaskNotFound
	}

	fields := taskToMap(t)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()
	key := taskKey(tID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: delete task exists: %w", err)
	}
	if exists == 0 {
		return hive.ErrTaskNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, taskIDsKey, tID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: delete task: %w", err)
	}
	return nil
}

// ListPendingTasks returns all pending tasks ordered by creation time,
// then ID. Redis Sets are unordered, so the sort happens client-side.
func (s *Store) ListPendingTasks(ctx context.Context) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hive/redis: list pending smembers: %w", err)
	}

	var pending []*task.Task
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue // skip missing
		}
		if t.State != task.StatePending {
			continue
		}
		pending = append(pending, t)
	}
	sortTasks(pending)
	return pending, nil
}

// AssignTask pairs a pending task with an idle worker: the task moves
// to assigned and the worker is marked busy in a single pipeline.
func (s *Store) AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	t, err := s.getTaskByKey(ctx, taskKey(taskID.String()))
	if err != nil {
		return err
	}
	if t.State != task.StatePending {
		return hive.ErrTaskNotPending
	}

	w, err := s.getWorkerByKey(ctx, workerKey(workerID.String()))
	if err != nil {
		return err
	}
	if w.Busy {
		return hive.ErrWorkerBusy
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID.String()),
		"state", string(task.StateAssigned),
		"worker_id", workerID.String(),
		"assigned_at", now,
		"updated_at", now,
	)
	pipe.HSet(ctx, workerKey(workerID.String()),
		"busy", "1",
		"task_id", taskID.String(),
		"updated_at", now,
	)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: assign task: %w", err)
	}
	return nil
}

// CompleteTask marks an assigned task completed and frees its worker.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID) error {
	return s.finishTask(ctx, taskID, task.StateCompleted, "")
}

// FailTask marks an assigned task failed and frees its worker.
func (s *Store) FailTask(ctx context.Context, taskID id.TaskID, reason string) error {
	return s.finishTask(ctx, taskID, task.StateFailed, reason)
}

func (s *Store) finishTask(ctx context.Context, taskID id.TaskID, state task.State, reason string) error {
	t, err := s.getTaskByKey(ctx, taskKey(taskID.String()))
	if err != nil {
		return err
	}
	if t.State != task.StateAssigned {
		return fmt.Errorf("hive/redis: finish task in state %q: %w", t.State, hive.ErrInvalidState)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID.String()),
		"state", string(state),
		"last_error", reason,
		"completed_at", now,
		"updated_at", now,
	)
	if !t.WorkerID.IsNil() {
		pipe.HSet(ctx, workerKey(t.WorkerID.String()),
			"busy", "0",
			"task_id", "",
			"updated_at", now,
		)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: finish task: %w", err)
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hive/redis: list tasks smembers: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue // skip missing
		}
		if t.State != state {
			continue
		}
		tasks = append(tasks, t)
	}
	sortTasks(tasks)

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(tasks) {
		tasks = tasks[opts.Offset:]
	} else if opts.Offset >= len(tasks) {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("hive/redis: count smembers: %w", err)
	}

	var count int64
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

func sortTasks(tasks []*task.Task) {
	sort.Slice(tasks, func(i, k int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[k].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[k].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[k].ID.String()
	})
}

func taskToMap(t *task.Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":         t.ID.String(),
		"name":       t.Name,
		"payload":    string(t.Payload),
		"state":      string(t.State),
		"last_error": t.LastError,
		"worker_id":  t.WorkerID.String(),
		"created_at": t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.AssignedAt != nil {
		m["assigned_at"] = t.AssignedAt.Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		m["completed_at"] = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getTaskByKey(ctx context.Context, key string) (*task.Task, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, hive.ErrTaskNotFound
		}
		return nil, fmt.Errorf("hive/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, hive.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hive/redis: parse task id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &task.Task{
		Entity:    hive.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:        tID,
		Name:      m["name"],
		State:     task.State(m["state"]),
		LastError: m["last_error"],
	}
	if p := m["payload"]; p != "" {
		t.Payload = []byte(p)
	}
	if wid := m["worker_id"]; wid != "" {
		t.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["assigned_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.AssignedAt = &ts
	}
	if v := m["completed_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.CompletedAt = &ts
	}
	return t, nil
}
