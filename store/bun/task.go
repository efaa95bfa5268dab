package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
)

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return hive.ErrTaskAlreadyExists
		}
		return fmt.Errorf("hive/bun: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", taskID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrTaskNotFound
		}
		return nil, fmt.Errorf("hive/bun: get task: %w", err)
	}
	return fromTaskModel(m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/bun: update task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hive.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.NewDelete().
		TableExpr("hive_tasks").
		Where("id = ?", taskID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/bun: delete task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hive.ErrTaskNotFound
	}
	return nil
}

// ListPendingTasks returns all pending tasks ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListPendingTasks(ctx context.Context) ([]*task.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().Model(&models).
		Where("state = ?", string(task.StatePending)).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hive/bun: list pending tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hive/bun: list pending convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// AssignTask commits the pairing of a pending task with an idle worker
// in a single transaction. Row locks on both rows keep concurrent
// schedulers from double-assigning.
func (s *Store) AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tm := new(taskModel)
		err := tx.NewSelect().Model(tm).
			Where("id = ?", taskID.String()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return hive.ErrTaskNotFound
			}
			return fmt.Errorf("hive/bun: assign lock task: %w", err)
		}
		if task.State(tm.State) != task.StatePending {
			return hive.ErrTaskNotPending
		}

		wm := new(workerModel)
		err = tx.NewSelect().Model(wm).
			Where("id = ?", workerID.String()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return hive.ErrWorkerNotFound
			}
			return fmt.Errorf("hive/bun: assign lock worker: %w", err)
		}
		if wm.Busy {
			return hive.ErrWorkerBusy
		}

		now := time.Now().UTC()
		_, err = tx.NewUpdate().
			TableExpr("hive_tasks").
			Set("state = ?", string(task.StateAssigned)).
			Set("worker_id = ?", workerID.String()).
			Set("assigned_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", taskID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("hive/bun: assign update task: %w", err)
		}

		_, err = tx.NewUpdate().
			TableExpr("hive_workers").
			Set("busy = TRUE").
			Set("task_id = ?", taskID.String()).
			Set("updated_at = ?", now).
			Where("id = ?", workerID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("hive/bun: assign update worker: %w", err)
		}
		return nil
	})
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
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tm := new(taskModel)
		err := tx.NewSelect().Model(tm).
			Where("id = ?", taskID.String()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return hive.ErrTaskNotFound
			}
			return fmt.Errorf("hive/bun: finish lock task: %w", err)
		}
		if task.State(tm.State) != task.StateAssigned {
			return fmt.Errorf("hive/bun: finish task in state %q: %w", tm.State, hive.ErrInvalidState)
		}

		now := time.Now().UTC()
		_, err = tx.NewUpdate().
			TableExpr("hive_tasks").
			Set("state = ?", string(state)).
			Set("last_error = ?", reason).
			Set("completed_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", taskID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("hive/bun: finish update task: %w", err)
		}

		if tm.WorkerID != "" {
			_, err = tx.NewUpdate().
				TableExpr("hive_workers").
				Set("busy = FALSE").
				Set("task_id = ''").
				Set("updated_at = ?", now).
				Where("id = ?", tm.WorkerID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("hive/bun: finish free worker: %w", err)
			}
		}
		return nil
	})
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	var models []taskModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state)).
		Order("created_at ASC", "id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hive/bun: list tasks by state: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hive/bun: list tasks convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*taskModel)(nil))
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hive/bun: count tasks: %w", err)
	}
	return int64(count), nil
}
