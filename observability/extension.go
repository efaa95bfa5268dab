// Package observability provides a hook.Extension that records scheduler
// metrics through OpenTelemetry. If no global MeterProvider is configured
// the OTel API falls back to noop instruments, so registering the
// extension in an uninstrumented process is free.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// meterName is the instrumentation scope name for hive metrics.
const meterName = "github.com/taskhive/hive"

// Compile-time interface checks.
var (
	_ hook.Extension      = (*MetricsExtension)(nil)
	_ hook.TaskCreated    = (*MetricsExtension)(nil)
	_ hook.TaskAssigned   = (*MetricsExtension)(nil)
	_ hook.CycleCompleted = (*MetricsExtension)(nil)
	_ hook.CycleFailed    = (*MetricsExtension)(nil)
	_ hook.WorkerReaped   = (*MetricsExtension)(nil)
)

// MetricsExtension records scheduler lifecycle metrics.
//
// Instruments:
//   - hive.task.created (Int64Counter): tasks created
//   - hive.task.assigned (Int64Counter): assignments committed, with
//     attribute worker_pool
//   - hive.cycle.count (Int64Counter): reconciliation cycles, with
//     attribute status ("ok" or "error")
//   - hive.cycle.duration (Float64Histogram): cycle wall time in seconds
//   - hive.cycle.backlog (Int64Gauge): pending tasks observed at the
//     start of the last cycle
//   - hive.worker.reaped (Int64Counter): workers marked lost
type MetricsExtension struct {
	taskCreated   metric.Int64Counter
	taskAssigned  metric.Int64Counter
	cycleCount    metric.Int64Counter
	cycleDuration metric.Float64Histogram
	cycleBacklog  metric.Int64Gauge
	workerReaped  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the extension degrades gracefully.
	taskCreated, err := meter.Int64Counter(
		"hive.task.created",
		metric.WithDescription("Total number of tasks created"),
		metric.WithUnit("{task}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	taskAssigned, err := meter.Int64Counter(
		"hive.task.assigned",
		metric.WithDescription("Total number of assignments committed"),
		metric.WithUnit("{assignment}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	cycleCount, err := meter.Int64Counter(
		"hive.cycle.count",
		metric.WithDescription("Total number of reconciliation cycles"),
		metric.WithUnit("{cycle}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	cycleDuration, err := meter.Float64Histogram(
		"hive.cycle.duration",
		metric.WithDescription("Duration of reconciliation cycles in seconds"),
		metric.WithUnit("s"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	cycleBacklog, err := meter.Int64Gauge(
		"hive.cycle.backlog",
		metric.WithDescription("Pending tasks observed at the start of the last cycle"),
		metric.WithUnit("{task}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	workerReaped, err := meter.Int64Counter(
		"hive.worker.reaped",
		metric.WithDescription("Total number of workers marked lost"),
		metric.WithUnit("{worker}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	return &MetricsExtension{
		taskCreated:   taskCreated,
		taskAssigned:  taskAssigned,
		cycleCount:    cycleCount,
		cycleDuration: cycleDuration,
		cycleBacklog:  cycleBacklog,
		workerReaped:  workerReaped,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnTaskCreated implements hook.TaskCreated.
func (m *MetricsExtension) OnTaskCreated(ctx context.Context, _ *task.Task) error {
	m.taskCreated.Add(ctx, 1)
	return nil
}

// OnTaskAssigned implements hook.TaskAssigned.
func (m *MetricsExtension) OnTaskAssigned(ctx context.Context, _ *task.Task, w *worker.Worker) error {
	m.taskAssigned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker_pool", w.Pool),
	))
	return nil
}

// OnCycleCompleted implements hook.CycleCompleted.
func (m *MetricsExtension) OnCycleCompleted(ctx context.Context, stats hook.CycleStats) error {
	m.cycleCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", "ok"),
	))
	m.cycleDuration.Record(ctx, stats.Elapsed.Seconds())
	m.cycleBacklog.Record(ctx, int64(stats.PendingTasks))
	return nil
}

// OnCycleFailed implements hook.CycleFailed.
func (m *MetricsExtension) OnCycleFailed(ctx context.Context, _ error) error {
	m.cycleCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", "error"),
	))
	return nil
}

// OnWorkerReaped implements hook.WorkerReaped.
func (m *MetricsExtension) OnWorkerReaped(ctx context.Context, _ *worker.Worker) error {
	m.workerReaped.Add(ctx, 1)
	return nil
}
