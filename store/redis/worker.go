package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/worker"
)

// RegisterWorker adds a new worker to the registry.
func (s *Store) RegisterWorker(ctx context.Context, w *worker.Worker) error {
	wID := w.ID.String()
	key := workerKey(wID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: register check exists: %w", err)
	}
	if exists > 0 {
		return hive.ErrWorkerAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, workerToMap(w))
	pipe.SAdd(ctx, workerIDsKey, wID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	wID := workerID.String()
	key := workerKey(wID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: deregister exists: %w", err)
	}
	if exists == 0 {
		return hive.ErrWorkerNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, workerIDsKey, wID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hive/redis: deregister worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	return s.getWorkerByKey(ctx, workerKey(workerID.String()))
}

// HeartbeatWorker updates the last-seen timestamp for a worker. A
// heartbeat from a lost worker restores it to active.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())
	w, err := s.getWorkerByKey(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	fields := []interface{}{
		"last_seen", now,
		"updated_at", now,
	}
	if w.State == worker.StateLost {
		fields = append(fields, "state", string(worker.StateActive))
	}
	_, err = s.client.HSet(ctx, key, fields...).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: heartbeat worker: %w", err)
	}
	return nil
}

// ListWorkers returns all registered workers ordered by creation time,
// then ID. Redis Sets are unordered, so the sort happens client-side.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hive/redis: list workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(ids))
	for _, wID := range ids {
		w, getErr := s.getWorkerByKey(ctx, workerKey(wID))
		if getErr != nil {
			continue // skip missing
		}
		workers = append(workers, w)
	}
	sortWorkers(workers)
	return workers, nil
}

// MarkWorkerIdle clears the busy flag and task reference on a worker.
func (s *Store) MarkWorkerIdle(ctx context.Context, workerID id.WorkerID) error {
	key := workerKey(workerID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: mark idle exists: %w", err)
	}
	if exists == 0 {
		return hive.ErrWorkerNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"busy", "0",
		"task_id", "",
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("hive/redis: mark idle: %w", err)
	}
	return nil
}

// ReapStaleWorkers marks workers whose last-seen timestamp is older than
// the threshold as lost, and returns them. Already-lost workers are not
// reaped twice.
func (s *Store) ReapStaleWorkers(ctx context.Context, threshold time.Duration) ([]*worker.Worker, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hive/redis: reap smembers: %w", err)
	}

	var stale []*worker.Worker
	for _, wID := range ids {
		w, getErr := s.getWorkerByKey(ctx, workerKey(wID))
		if getErr != nil {
			continue
		}
		if w.State == worker.StateLost {
			continue
		}
		if !w.LastSeen.Before(cutoff) {
			continue
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, hErr := s.client.HSet(ctx, workerKey(wID),
			"state", string(worker.StateLost),
			"updated_at", now,
		).Result()
		if hErr != nil {
			return nil, fmt.Errorf("hive/redis: reap mark lost: %w", hErr)
		}
		w.State = worker.StateLost
		stale = append(stale, w)
	}
	return stale, nil
}

// ── helpers ──

func sortWorkers(workers []*worker.Worker) {
	sort.Slice(workers, func(i, k int) bool {
		if !workers[i].CreatedAt.Equal(workers[k].CreatedAt) {
			return workers[i].CreatedAt.Before(workers[k].CreatedAt)
		}
		return workers[i].ID.String() < workers[k].ID.String()
	})
}

func workerToMap(w *worker.Worker) map[string]interface{} {
	busy := "0"
	if w.Busy {
		busy = "1"
	}
	return map[string]interface{}{
		"id":         w.ID.String(),
		"hostname":   w.Hostname,
		"pool":       w.Pool,
		"busy":       busy,
		"state":      string(w.State),
		"task_id":    w.TaskID.String(),
		"metadata":   marshalJSON(w.Metadata),
		"last_seen":  w.LastSeen.Format(time.RFC3339Nano),
		"created_at": w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": w.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Store) getWorkerByKey(ctx context.Context, key string) (*worker.Worker, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, hive.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("hive/redis: get worker: %w", err)
	}
	if len(vals) == 0 {
		return nil, hive.ErrWorkerNotFound
	}
	return mapToWorker(vals)
}

func mapToWorker(m map[string]string) (*worker.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hive/redis: parse worker id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	lastSeen, _ := time.Parse(time.RFC3339Nano, m["last_seen"])   //nolint:errcheck // best-effort parse from trusted Redis data

	w := &worker.Worker{
		Entity:   hive.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:       wID,
		Hostname: m["hostname"],
		Pool:     m["pool"],
		Busy:     m["busy"] == "1",
		State:    worker.State(m["state"]),
		LastSeen: lastSeen,
		Metadata: unmarshalMap(m["metadata"]),
	}
	if tid := m["task_id"]; tid != "" {
		w.TaskID, _ = id.ParseTaskID(tid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return w, nil
}

// marshalJSON is a helper to marshal to a JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalMap parses a JSON map.
func unmarshalMap(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
