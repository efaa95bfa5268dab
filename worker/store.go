package worker

import (
	"context"
	"time"

	"github.com/taskhive/hive/id"
)

// Store defines the persistence contract for worker registration and
// liveness.
type Store interface {
	// RegisterWorker adds a new worker to the registry.
	RegisterWorker(ctx context.Context, w *Worker) error

	// DeregisterWorker removes a worker from the registry.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// GetWorker retrieves a worker by ID.
	GetWorker(ctx context.Context, workerID id.WorkerID) (*Worker, error)

	// HeartbeatWorker updates the last-seen timestamp for a worker,
	// indicating it is still alive. A heartbeat from a lost worker
	// restores it to active.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns all registered workers ordered by
	// registration time, then ID. The ordering is stable so positional
	// pairing by the scheduler is deterministic.
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// MarkWorkerIdle clears the busy flag and task reference for a
	// worker, returning it to the assignable set.
	MarkWorkerIdle(ctx context.Context, workerID id.WorkerID) error

	// ReapStaleWorkers marks workers whose last-seen timestamp is older
	// than the threshold as lost and returns them.
	ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*Worker, error)
}
