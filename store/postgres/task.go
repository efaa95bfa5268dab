package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
)

const taskColumns = `
	id, name, payload, state, worker_id, last_error,
	assigned_at, completed_at, created_at, updated_at`

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hive_tasks (
			id, name, payload, state, worker_id, last_error,
			assigned_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		t.ID.String(), t.Name, t.Payload, string(t.State),
		t.WorkerID.String(), t.LastError,
		t.AssignedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return hive.ErrTaskAlreadyExists
		}
		return fmt.Errorf("hive/postgres: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM hive_tasks WHERE id = $1`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrTaskNotFound
		}
		return nil, fmt.Errorf("hive/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hive_tasks SET
			name = $2, payload = $3, state = $4, worker_id = $5,
			last_error = $6, assigned_at = $7, completed_at = $8,
			updated_at = NOW()
		WHERE id = $1`,
		t.ID.String(), t.Name, t.Payload, string(t.State),
		t.WorkerID.String(), t.LastError, t.AssignedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hive.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hive_tasks WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("hive/postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hive.ErrTaskNotFound
	}
	return nil
}

// ListPendingTasks returns all pending tasks ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListPendingTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM hive_tasks
		WHERE state = 'pending'
		ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("hive/postgres: list pending tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// AssignTask commits the pairing of a pending task with an idle worker
// in a single transaction. Row locks on both rows keep concurrent
// schedulers from double-assigning.
func (s *Store) AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hive/postgres: assign begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var taskState string
	err = tx.QueryRow(ctx,
		`SELECT state FROM hive_tasks WHERE id = $1 FOR UPDATE`,
		taskID.String(),
	).Scan(&taskState)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrTaskNotFound
		}
		return fmt.Errorf("hive/postgres: assign lock task: %w", err)
	}
	if task.State(taskState) != task.StatePending {
		return hive.ErrTaskNotPending
	}

	var busy bool
	err = tx.QueryRow(ctx,
		`SELECT busy FROM hive_workers WHERE id = $1 FOR UPDATE`,
		workerID.String(),
	).Scan(&busy)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrWorkerNotFound
		}
		return fmt.Errorf("hive/postgres: assign lock worker: %w", err)
	}
	if busy {
		return hive.ErrWorkerBusy
	}

	_, err = tx.Exec(ctx, `
		UPDATE hive_tasks SET
			state = 'assigned', worker_id = $2, assigned_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		taskID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: assign update task: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE hive_workers SET
			busy = TRUE, task_id = $2, updated_at = NOW()
		WHERE id = $1`,
		workerID.String(), taskID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: assign update worker: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("hive/postgres: assign commit: %w", err)
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hive/postgres: finish begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var (
		taskState string
		workerStr string
	)
	err = tx.QueryRow(ctx,
		`SELECT state, worker_id FROM hive_tasks WHERE id = $1 FOR UPDATE`,
		taskID.String(),
	).Scan(&taskState, &workerStr)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrTaskNotFound
		}
		return fmt.Errorf("hive/postgres: finish lock task: %w", err)
	}
	if task.State(taskState) != task.StateAssigned {
		return fmt.Errorf("hive/postgres: finish task in state %q: %w", taskState, hive.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		UPDATE hive_tasks SET
			state = $2, last_error = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		taskID.String(), string(state), reason,
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: finish update task: %w", err)
	}

	if workerStr != "" {
		_, err = tx.Exec(ctx, `
			UPDATE hive_workers SET
				busy = FALSE, task_id = '', updated_at = NOW()
			WHERE id = $1`,
			workerStr,
		)
		if err != nil {
			return fmt.Errorf("hive/postgres: finish free worker: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("hive/postgres: finish commit: %w", err)
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM hive_tasks WHERE state = $1 ORDER BY created_at ASC, id ASC`
	args := []interface{}{string(state)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hive/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM hive_tasks`
	args := []interface{}{}

	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("hive/postgres: count tasks: %w", err)
	}
	return count, nil
}

// ── scan helpers ──

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		stateStr  string
		workerStr string
	)
	err := row.Scan(
		&idStr, &t.Name, &t.Payload, &stateStr, &workerStr, &t.LastError,
		&t.AssignedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = task.State(stateStr)

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("hive/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			t.WorkerID = parsedWorker
		}
	}

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("hive/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hive/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
