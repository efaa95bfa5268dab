package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/worker"
)

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	m := toWorkerModel(w)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return hive.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("hive/bun: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.NewDelete().
		TableExpr("hive_workers").
		Where("id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/bun: deregister worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m := new(workerModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workerID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hive.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("hive/bun: get worker: %w", err)
	}
	return fromWorkerModel(m)
}

// HeartbeatWorker updates the last-seen timestamp for a worker. A
// heartbeat from a lost worker restores it to active.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("hive_workers").
		Set("last_seen = ?", now).
		Set("state = CASE WHEN state = 'lost' THEN 'active' ELSE state END").
		Set("updated_at = ?", now).
		Where("id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/bun: heartbeat worker: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers ordered by creation time,
// then ID, so positional pairing is deterministic.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	var models []workerModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hive/bun: list workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hive/bun: list workers convert: %w", convErr)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// MarkWorkerIdle clears the busy flag and task reference on a worker.
func (s *Store) MarkWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("hive_workers").
		Set("busy = FALSE").
		Set("task_id = ''").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/bun: mark worker idle: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hive.ErrWorkerNotFound
	}
	return nil
}

// ReapStaleWorkers marks workers whose last-seen timestamp is older
// than the threshold as lost, and returns them.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	var models []workerModel
	_, err := s.db.NewRaw(`
		UPDATE hive_workers
		SET state = 'lost', updated_at = NOW()
		WHERE state != 'lost' AND last_seen < ?
		RETURNING *`,
		cutoff,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("hive/bun: reap stale workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hive/bun: reap convert: %w", convErr)
		}
		workers = append(workers, w)
	}
	return workers, nil
}
