package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/worker"
)

const workerColumns = `
	id, hostname, pool, busy, state, task_id, metadata,
	last_seen, created_at, updated_at`

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	busy := 0
	if w.Busy {
		busy = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hive_workers (
			id, hostname, pool, busy, state, task_id, metadata,
			last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.Hostname, w.Pool, busy, string(w.State),
		w.TaskID.String(), marshalMetadata(w.Metadata),
		fmtTime(w.LastSeen), fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return hive.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("hive/sqlite: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM hive_workers WHERE id = ?`, workerID.String())
	if err != nil {
		return fmt.Errorf("hive/sqlite: deregister worker: %w", err)
	}
	return requireRow(res, hive.ErrWorkerNotFound)
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM hive_workers WHERE id = ?`,
		workerID.String(),
	)

	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("hive/sqlite: get worker: %w", err)
	}
	return w, nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker. A
// heartbeat from a lost worker restores it to active.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	now := fmtTime(nowUTC())
	res, err := s.db.ExecContext(ctx, `
		UPDATE hive_workers SET
			last_seen = ?,
			state = CASE WHEN state = 'lost' THEN 'active' ELSE state END,
			updated_at = ?
		WHERE id = ?`,
		now, now, workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: heartbeat worker: %w", err)
	}
	return requireRow(res, hive.ErrWorkerNotFound)
}

// ListWorkers returns all registered workers ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM hive_workers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("hive/sqlite: list workers: %w", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// MarkWorkerIdle clears the busy flag and task reference on a worker.
func (s *Store) MarkWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hive_workers SET
			busy = 0, task_id = '', updated_at = ?
		WHERE id = ?`,
		fmtTime(nowUTC()), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("hive/sqlite: mark worker idle: %w", err)
	}
	return requireRow(res, hive.ErrWorkerNotFound)
}

// ReapStaleWorkers marks workers whose last-seen timestamp is older
// than the threshold as lost, and returns them.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := fmtTime(nowUTC().Add(-threshold))

	rows, err := s.db.QueryContext(ctx, `
		UPDATE hive_workers SET
			state = 'lost', updated_at = ?
		WHERE state != 'lost' AND last_seen < ?
		RETURNING `+workerColumns,
		fmtTime(nowUTC()), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("hive/sqlite: reap stale workers: %w", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// ── scan helpers ──

func scanWorker(row rowScanner) (*worker.Worker, error) {
	var (
		w         worker.Worker
		idStr     string
		busy      int
		stateStr  string
		taskStr   string
		metaStr   string
		lastSeen  string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&idStr, &w.Hostname, &w.Pool, &busy, &stateStr, &taskStr, &metaStr,
		&lastSeen, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Busy = busy != 0
	w.State = worker.State(stateStr)
	w.Metadata = unmarshalMetadata(metaStr)

	parsedID, parseErr := id.ParseWorkerID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("hive/sqlite: parse worker id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	if taskStr != "" {
		parsedTask, taskErr := id.ParseTaskID(taskStr)
		if taskErr == nil {
			w.TaskID = parsedTask
		}
	}

	if w.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse last_seen: %w", err)
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("hive/sqlite: parse updated_at: %w", err)
	}

	return &w, nil
}

// collectWorkers collects all workers from query rows.
func collectWorkers(rows *sql.Rows) ([]*worker.Worker, error) {
	var workers []*worker.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("hive/sqlite: scan worker row: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hive/sqlite: iterate worker rows: %w", err)
	}
	return workers, nil
}
