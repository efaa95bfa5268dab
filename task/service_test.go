package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/store/memory"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

func newActiveWorker(t *testing.T, ctx context.Context, store *memory.Store) *worker.Worker {
	t.Helper()
	w := &worker.Worker{
		Entity:   hive.NewEntity(),
		ID:       id.NewWorkerID(),
		Hostname: "test-host",
		State:    worker.StateActive,
		LastSeen: time.Now().UTC(),
	}
	if err := store.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	return w
}

type recordingEmitter struct {
	created []*task.Task
}

func (r *recordingEmitter) EmitTaskCreated(_ context.Context, t *task.Task) {
	r.created = append(r.created, t)
}

func TestServiceSubmit_PersistsPendingAndEmits(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	emitter := &recordingEmitter{}
	svc := task.NewService(store, emitter, nil)

	created, err := svc.Submit(ctx, "encode-video", []byte(`{"src":"a.mp4"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if created.State != task.StatePending {
		t.Errorf("state = %q, want %q", created.State, task.StatePending)
	}
	if created.ID.IsNil() {
		t.Error("expected a generated task ID")
	}

	got, err := store.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Name != "encode-video" {
		t.Errorf("name = %q, want %q", got.Name, "encode-video")
	}

	if len(emitter.created) != 1 {
		t.Fatalf("emitted %d created events, want 1", len(emitter.created))
	}
	if emitter.created[0].ID != created.ID {
		t.Errorf("emitted task %s, want %s", emitter.created[0].ID, created.ID)
	}
}

func TestServiceSubmit_NilEmitter(t *testing.T) {
	svc := task.NewService(memory.New(), nil, nil)

	if _, err := svc.Submit(context.Background(), "cleanup", nil); err != nil {
		t.Fatalf("Submit with nil emitter: %v", err)
	}
}

func TestServiceSubmit_RequiresName(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := task.NewService(memory.New(), emitter, nil)

	if _, err := svc.Submit(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty task name")
	}
	if len(emitter.created) != 0 {
		t.Errorf("emitted %d created events, want 0", len(emitter.created))
	}
}

func TestServiceCancel_PendingOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := task.NewService(store, nil, nil)

	created, err := svc.Submit(ctx, "reindex", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.Cancel(ctx, created.ID); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	if _, err := store.GetTask(ctx, created.ID); !errors.Is(err, hive.ErrTaskNotFound) {
		t.Errorf("GetTask after cancel = %v, want ErrTaskNotFound", err)
	}
}

func TestServiceCancel_AssignedTaskRefused(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := task.NewService(store, nil, nil)

	created, err := svc.Submit(ctx, "reindex", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	w := newActiveWorker(t, ctx, store)
	if err := store.AssignTask(ctx, created.ID, w.ID); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}

	if err := svc.Cancel(ctx, created.ID); !errors.Is(err, hive.ErrTaskNotPending) {
		t.Errorf("Cancel assigned = %v, want ErrTaskNotPending", err)
	}
}
