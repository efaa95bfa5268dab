package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/store/memory"
	"github.com/taskhive/hive/worker"
)

// spyEmitter records reaped workers.
type spyEmitter struct {
	mu     sync.Mutex
	reaped []id.WorkerID
}

func (e *spyEmitter) EmitWorkerReaped(_ context.Context, w *worker.Worker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reaped = append(e.reaped, w.ID)
}

func (e *spyEmitter) reapedIDs() []id.WorkerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]id.WorkerID, len(e.reaped))
	copy(out, e.reaped)
	return out
}

func registerWorker(t *testing.T, s *memory.Store, host string, lastSeen time.Time) *worker.Worker {
	t.Helper()
	w := &worker.Worker{
		Entity:   hive.NewEntity(),
		ID:       id.NewWorkerID(),
		Hostname: host,
		State:    worker.StateActive,
		LastSeen: lastSeen,
	}
	if err := s.RegisterWorker(context.Background(), w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	return w
}

func TestMonitor_ReapsStaleWorkers(t *testing.T) {
	store := memory.New()
	emitter := &spyEmitter{}

	stale := registerWorker(t, store, "stale", time.Now().UTC().Add(-time.Hour))
	registerWorker(t, store, "fresh", time.Now().UTC())

	m := worker.NewMonitor(store, emitter, slog.Default(),
		worker.WithMonitorInterval(20*time.Millisecond),
		worker.WithStaleThreshold(30*time.Second),
	)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background()) //nolint:errcheck

	deadline := time.After(time.Second)
	for {
		if ids := emitter.reapedIDs(); len(ids) > 0 {
			if ids[0] != stale.ID {
				t.Fatalf("reaped %s, want %s", ids[0], stale.ID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for stale worker to be reaped")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got, err := store.GetWorker(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.State != worker.StateLost {
		t.Errorf("state = %q, want lost", got.State)
	}

	// The fresh worker is untouched and no worker is reaped twice.
	time.Sleep(60 * time.Millisecond)
	if ids := emitter.reapedIDs(); len(ids) != 1 {
		t.Errorf("reaped %d workers, want 1", len(ids))
	}
}

func TestMonitor_StartIdempotent(t *testing.T) {
	store := memory.New()
	m := worker.NewMonitor(store, nil, slog.Default(),
		worker.WithMonitorInterval(10*time.Millisecond),
	)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestMonitor_StopIdempotentAndSafeWhenNotStarted(t *testing.T) {
	store := memory.New()
	m := worker.NewMonitor(store, nil, slog.Default())

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestMonitorFromConfig_AppliesIntervalAndThreshold(t *testing.T) {
	store := memory.New()
	emitter := &spyEmitter{}

	stale := registerWorker(t, store, "stale", time.Now().UTC().Add(-time.Minute))
	registerWorker(t, store, "fresh", time.Now().UTC())

	cfg := hive.Config{
		MonitorInterval:      20 * time.Millisecond,
		StaleWorkerThreshold: 30 * time.Second,
	}
	m := worker.MonitorFromConfig(store, emitter, slog.Default(), cfg)
	if m == nil {
		t.Fatal("MonitorFromConfig returned nil for non-zero interval")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background()) //nolint:errcheck

	deadline := time.After(time.Second)
	for {
		if ids := emitter.reapedIDs(); len(ids) > 0 {
			if ids[0] != stale.ID {
				t.Fatalf("reaped %s, want %s", ids[0], stale.ID)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for configured monitor to reap")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMonitorFromConfig_ZeroIntervalDisables(t *testing.T) {
	if m := worker.MonitorFromConfig(memory.New(), nil, nil, hive.Config{}); m != nil {
		t.Fatal("expected nil monitor when interval is zero")
	}
}

func TestMonitor_Restartable(t *testing.T) {
	store := memory.New()
	emitter := &spyEmitter{}
	m := worker.NewMonitor(store, emitter, slog.Default(),
		worker.WithMonitorInterval(15*time.Millisecond),
		worker.WithStaleThreshold(30*time.Second),
	)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A monitor stopped once can be started again with a fresh loop.
	stale := registerWorker(t, store, "late", time.Now().UTC().Add(-time.Hour))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer m.Stop(context.Background()) //nolint:errcheck

	deadline := time.After(time.Second)
	for {
		if ids := emitter.reapedIDs(); len(ids) > 0 {
			if ids[0] != stale.ID {
				t.Fatalf("reaped %s, want %s", ids[0], stale.ID)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reap after restart")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
