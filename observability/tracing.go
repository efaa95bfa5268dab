package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskhive/hive/hook"
	"github.com/taskhive/hive/task"
	"github.com/taskhive/hive/worker"
)

// tracerName is the instrumentation scope name for hive tracing.
const tracerName = "github.com/taskhive/hive"

// Compile-time interface checks.
var (
	_ hook.Extension    = (*TracingExtension)(nil)
	_ hook.TaskAssigned = (*TracingExtension)(nil)
	_ hook.CycleFailed  = (*TracingExtension)(nil)
)

// TracingExtension emits OpenTelemetry marker spans for assignments and
// failed cycles. If no TracerProvider is configured globally, the noop
// tracer is used and the extension is a pass-through with zero overhead.
//
// Span attributes include: hive.task.id, hive.task.name, hive.worker.id,
// hive.worker.pool. Failed cycles produce a span with codes.Error status.
type TracingExtension struct {
	tracer trace.Tracer
}

// NewTracingExtension creates a TracingExtension using the global OTel
// TracerProvider.
func NewTracingExtension() *TracingExtension {
	return NewTracingExtensionWithTracer(otel.Tracer(tracerName))
}

// NewTracingExtensionWithTracer creates a TracingExtension with the
// provided tracer. This variant allows injecting a specific
// TracerProvider for testing.
func NewTracingExtensionWithTracer(tracer trace.Tracer) *TracingExtension {
	return &TracingExtension{tracer: tracer}
}

// Name implements hook.Extension.
func (t *TracingExtension) Name() string { return "observability-tracing" }

// OnTaskAssigned implements hook.TaskAssigned.
func (t *TracingExtension) OnTaskAssigned(ctx context.Context, tk *task.Task, w *worker.Worker) error {
	_, span := t.tracer.Start(ctx, "hive.task.assign",
		trace.WithAttributes(
			attribute.String("hive.task.id", tk.ID.String()),
			attribute.String("hive.task.name", tk.Name),
			attribute.String("hive.worker.id", w.ID.String()),
			attribute.String("hive.worker.pool", w.Pool),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
	return nil
}

// OnCycleFailed implements hook.CycleFailed.
func (t *TracingExtension) OnCycleFailed(ctx context.Context, cycleErr error) error {
	_, span := t.tracer.Start(ctx, "hive.cycle.fail",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.RecordError(cycleErr)
	span.SetStatus(codes.Error, cycleErr.Error())
	span.End()
	return nil
}
