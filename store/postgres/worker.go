package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/worker"
)

const workerColumns = `
	id, hostname, pool, busy, state, task_id, metadata,
	last_seen, created_at, updated_at`

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hive_workers (
			id, hostname, pool, busy, state, task_id, metadata,
			last_seen, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10
		)`,
		w.ID.String(), w.Hostname, w.Pool, w.Busy, string(w.State),
		w.TaskID.String(), w.Metadata,
		w.LastSeen, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return hive.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("hive/postgres: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM hive_workers WHERE id = $1`, workerID.String())
	if err != nil {
		return fmt.Errorf("hive/postgres: deregister worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM hive_workers WHERE id = $1`,
		workerID.String(),
	)

	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("hive/postgres: get worker: %w", err)
	}
	return w, nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker. A
// heartbeat from a lost worker restores it to active.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hive_workers SET
			last_seen = NOW(),
			state = CASE WHEN state = 'lost' THEN 'active' ELSE state END,
			updated_at = NOW()
		WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: heartbeat worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+` FROM hive_workers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("hive/postgres: list workers: %w", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// MarkWorkerIdle clears the busy flag and task reference on a worker.
func (s *Store) MarkWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hive_workers SET
			busy = FALSE, task_id = '', updated_at = NOW()
		WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/postgres: mark worker idle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// ReapStaleWorkers marks workers whose last-seen timestamp is older
// than the threshold as lost, and returns them.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	rows, err := s.pool.Query(ctx, `
		UPDATE hive_workers SET
			state = 'lost', updated_at = NOW()
		WHERE state != 'lost' AND last_seen < $1
		RETURNING `+workerColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("hive/postgres: reap stale workers: %w", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// ── scan helpers ──

func scanWorker(row pgx.Row) (*worker.Worker, error) {
	var (
		w        worker.Worker
		idStr    string
		stateStr string
		taskStr  string
	)
	err := row.Scan(
		&idStr, &w.Hostname, &w.Pool, &w.Busy, &stateStr, &taskStr, &w.Metadata,
		&w.LastSeen, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.State = worker.State(stateStr)

	parsedID, parseErr := id.ParseWorkerID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("hive/postgres: parse worker id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	if taskStr != "" {
		parsedTask, taskErr := id.ParseTaskID(taskStr)
		if taskErr == nil {
			w.TaskID = parsedTask
		}
	}

	return &w, nil
}

// collectWorkers collects all workers from query rows.
func collectWorkers(rows pgx.Rows) ([]*worker.Worker, error) {
	var workers []*worker.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("hive/postgres: scan worker row: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hive/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}
