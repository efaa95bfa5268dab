package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/task"
)

const taskColumns = `
	id, name, payload, state, worker_id, last_error,
	assigned_at, completed_at, created_at, updated_at`

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hive_tasks (
			id, name, payload, state, worker_id, last_error,
			assigned_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Name, t.Payload, string(t.State),
		t.WorkerID.String(), t.LastError,
		fmtTimePtr(t.AssignedAt), fmtTimePtr(t.CompletedAt),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return hive.ErrTaskAlreadyExists
		}
		return fmt.Errorf("hive/sqlite: create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM hive_tasks WHERE id = ?`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrTaskNotFound
		}
		return nil, fmt.Errorf("hive/sqlite: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hive_tasks SET
			name = ?, payload = ?, state = ?, worker_id = ?,
			last_error = ?, assigned_at = ?, completed_at = ?,
			updated_at = ?
		WHERE id = ?`,
		t.Name, t.Payload, string(t.State), t.WorkerID.String(),
		t.LastError, fmtTimePtr(t.AssignedAt), fmtTimePtr(t.CompletedAt),
		fmtTime(nowUTC()), t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: update task: %w", err)
	}
	return requireRow(res, hive.ErrTaskNotFound)
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM hive_tasks WHERE id = ?`, taskID.String())
	if err != nil {
		return fmt.Errorf("hive/sqlite: delete task: %w", err)
	}
	return requireRow(res, hive.ErrTaskNotFound)
}

// ListPendingTasks returns all pending tasks ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListPendingTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM hive_tasks
		WHERE state = 'pending'
		ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("hive/sqlite: list pending tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// AssignTask commits the pairing of a pending task with an idle worker
// in a single transaction. SQLite serializes writers, so the
// check-then-update inside the transaction cannot interleave with
// another writer.
func (s *Store) AssignTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hive/sqlite: assign begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var taskState string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM hive_tasks WHERE id = ?`,
		taskID.String(),
	).Scan(&taskState)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrTaskNotFound
		}
		return fmt.Errorf("hive/sqlite: assign check task: %w", err)
	}
	if task.State(taskState) != task.StatePending {
		return hive.ErrTaskNotPending
	}

	var busy int
	err = tx.QueryRowContext(ctx,
		`SELECT busy FROM hive_workers WHERE id = ?`,
		workerID.String(),
	).Scan(&busy)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrWorkerNotFound
		}
		return fmt.Errorf("hive/sqlite: assign check worker: %w", err)
	}
	if busy != 0 {
		return hive.ErrWorkerBusy
	}

	now := fmtTime(nowUTC())

	_, err = tx.ExecContext(ctx, `
		UPDATE hive_tasks SET
			state = 'assigned', worker_id = ?, assigned_at = ?, updated_at = ?
		WHERE id = ?`,
		workerID.String(), now, now, taskID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: assign update task: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE hive_workers SET
			busy = 1, task_id = ?, updated_at = ?
		WHERE id = ?`,
		taskID.String(), now, workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: assign update worker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hive/sqlite: assign commit: %w", err)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hive/sqlite: finish begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var (
		taskState string
		workerStr string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT state, worker_id FROM hive_tasks WHERE id = ?`,
		taskID.String(),
	).Scan(&taskState, &workerStr)
	if err != nil {
		if isNoRows(err) {
			return hive.ErrTaskNotFound
		}
		return fmt.Errorf("hive/sqlite: finish check task: %w", err)
	}
	if task.State(taskState) != task.StateAssigned {
		return fmt.Errorf("hive/sqlite: finish task in state %q: %w", taskState, hive.ErrInvalidState)
	}

	now := fmtTime(nowUTC())

	_, err = tx.ExecContext(ctx, `
		UPDATE hive_tasks SET
			state = ?, last_error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(state), reason, now, now, taskID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: finish update task: %w", err)
	}

	if workerStr != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE hive_workers SET
				busy = 0, task_id = '', updated_at = ?
			WHERE id = ?`,
			now, workerStr,
		)
		if err != nil {
			return fmt.Errorf("hive/sqlite: finish free worker: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hive/sqlite: finish commit: %w", err)
	}
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM hive_tasks WHERE state = ? ORDER BY created_at ASC, id ASC`
	args := []any{string(state)}

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET; -1 means unbounded.
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hive/sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM hive_tasks`
	args := []any{}

	if opts.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("hive/sqlite: count tasks: %w", err)
	}
	return count, nil
}

// ── scan helpers ──

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t           task.Task
		idStr       string
		stateStr    string
		workerStr   string
		assignedAt  sql.NullString
		completedAt sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&idStr, &t.Name, &t.Payload, &stateStr, &workerStr, &t.LastError,
		&assignedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = task.State(stateStr)

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("hive/sqlite: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			t.WorkerID = parsedWorker
		}
	}

	if t.AssignedAt, err = parseTimePtr(assignedAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse assigned_at: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse completed_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse updated_at: %w", err)
	}

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("hive/sqlite: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hive/sqlite: iterate task rows: %w", err)
	}
	return tasks, nil
}

// requireRow converts a zero-rows-affected result into notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hive/sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
