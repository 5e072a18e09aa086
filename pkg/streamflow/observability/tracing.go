package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the streamflow tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("streamflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span for the entire run.
	// Returns the context with span and the span itself.
	StartRunSpan(ctx context.Context, runID, digest string) (context.Context, trace.Span)

	// StartTaskSpan starts a span for one task step.
	// The task span should be a child of the run span.
	StartTaskSpan(ctx context.Context, task, kind string, queue int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartRunSpan starts a span for the entire run.
func (m *otelSpanManager) StartRunSpan(ctx context.Context, runID, digest string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "streamflow.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("graph.digest", digest),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTaskSpan starts a span for one task step.
func (m *otelSpanManager) StartTaskSpan(ctx context.Context, task, kind string, queue int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "streamflow.task."+task,
		trace.WithAttributes(
			attribute.String("task", task),
			attribute.String("task.kind", kind),
			attribute.Int("queue", queue),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartRunSpan starts a span for the entire run.
// Uses the global OTel tracer.
func StartRunSpan(ctx context.Context, runID, digest string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "streamflow.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("graph.digest", digest),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTaskSpan starts a span for one task step.
// Uses the global OTel tracer.
func StartTaskSpan(ctx context.Context, task, kind string, queue int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "streamflow.task."+task,
		trace.WithAttributes(
			attribute.String("task", task),
			attribute.String("task.kind", kind),
			attribute.Int("queue", queue),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordBarrierEvent attaches a barrier record/wait event to the span in
// ctx, if any. action is "record" or "wait".
func RecordBarrierEvent(ctx context.Context, spans SpanManager, action string, barrier, queue int) {
	if spans == nil {
		return
	}
	spans.AddSpanEvent(ctx, "streamflow.barrier."+action,
		attribute.Int("barrier", barrier),
		attribute.Int("queue", queue),
	)
}
