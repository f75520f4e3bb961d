package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the workgate tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("workgate")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartTaskSpan starts a span covering one task execution.
	// Returns the context with span and the span itself.
	StartTaskSpan(ctx context.Context, taskID string, workerID int) (context.Context, trace.Span)

	// StartCheckoutSpan starts a span for a resource checkout.
	// The checkout span should be a child of the task span.
	StartCheckoutSpan(ctx context.Context) (context.Context, trace.Span)

	// StartInitSpan starts a span for a lazy initialization.
	StartInitSpan(ctx context.Context, key string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartTaskSpan starts a span covering one task execution.
func (m *otelSpanManager) StartTaskSpan(ctx context.Context, taskID string, workerID int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workgate.task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("worker.id", workerID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartCheckoutSpan starts a span for a resource checkout.
func (m *otelSpanManager) StartCheckoutSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workgate.checkout",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartInitSpan starts a span for a lazy initialization.
func (m *otelSpanManager) StartInitSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workgate.init."+key,
		trace.WithAttributes(
			attribute.String("key", key),
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
