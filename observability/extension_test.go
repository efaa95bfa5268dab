package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/taskhive/hive"
	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/id"
	"github.com/taskhive/hive/observability"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

func newTestMetrics(t *testing.T) (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	meter := provider.Meter("test")
	return observability.NewMetricsExtensionWithMeter(meter), reader
}

func newTestTask() *task.Task {
	return &task.Task{
		Entity: hive.NewEntity(),
		ID:     id.NewTaskID(),
		Name:   "send-email",
		State:  task.StatePending,
	}
}

func newTestWorker() *worker.Worker {
	return &worker.Worker{
		Entity:   hive.NewEntity(),
		ID:       id.NewWorkerID(),
		Hostname: "host-a",
		Pool:     "default",
		State:    worker.StateActive,
	}
}

// counterValue collects metrics and returns the summed value of the named
// Int64 counter, or 0 if absent.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestMetrics(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_TaskCreated(t *testing.T) {
	e, reader := newTestMetrics(t)
	if err := e.OnTaskCreated(context.Background(), newTestTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "hive.task.created"); got != 1 {
		t.Errorf("hive.task.created: want 1, got %d", got)
	}
}

func TestMetricsExtension_TaskAssigned(t *testing.T) {
	e, reader := newTestMetrics(t)
	if err := e.OnTaskAssigned(context.Background(), newTestTask(), newTestWorker()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "hive.task.assigned"); got != 1 {
		t.Errorf("hive.task.assigned: want 1, got %d", got)
	}
}

func TestMetricsExtension_CycleCompleted(t *testing.T) {
	e, reader := newTestMetrics(t)
	stats := hook.CycleStats{
		PendingTasks: 4,
		IdleWorkers:  2,
		Assigned:     2,
		Elapsed:      25 * time.Millisecond,
	}
	if err := e.OnCycleCompleted(context.Background(), stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "hive.cycle.count"); got != 1 {
		t.Errorf("hive.cycle.count: want 1, got %d", got)
	}
}

func TestMetricsExtension_CycleFailed(t *testing.T) {
	e, reader := newTestMetrics(t)
	if err := e.OnCycleFailed(context.Background(), errors.New("store down")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "hive.cycle.count"); got != 1 {
		t.Errorf("hive.cycle.count: want 1, got %d", got)
	}
}

func TestMetricsExtension_WorkerReaped(t *testing.T) {
	e, reader := newTestMetrics(t)
	if err := e.OnWorkerReaped(context.Background(), newTestWorker()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValue(t, reader, "hive.worker.reaped"); got != 1 {
		t.Errorf("hive.worker.reaped: want 1, got %d", got)
	}
}

func TestTracingExtension_TaskAssignedSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	e := observability.NewTracingExtensionWithTracer(provider.Tracer("test"))
	if err := e.OnTaskAssigned(context.Background(), newTestTask(), newTestWorker()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "hive.task.assign" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "hive.task.assign")
	}
}

func TestTracingExtension_CycleFailedSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	e := observability.NewTracingExtensionWithTracer(provider.Tracer("test"))
	if err := e.OnCycleFailed(context.Background(), errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "hive.cycle.fail" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "hive.cycle.fail")
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event on span")
	}
}
