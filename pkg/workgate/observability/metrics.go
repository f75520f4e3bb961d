package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records workgate metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTaskExecution records a task execution with its duration and
	// error status.
	RecordTaskExecution(ctx context.Context, duration time.Duration, err error)

	// RecordCheckoutWait records how long a checkout waited for a free
	// handle and whether it ultimately failed.
	RecordCheckoutWait(ctx context.Context, wait time.Duration, err error)

	// RecordHandles adjusts the outstanding-handle gauge by delta
	// (+1 on checkout, -1 on checkin).
	RecordHandles(ctx context.Context, delta int64)

	// RecordInit records a lazy initialization run for a key.
	RecordInit(ctx context.Context, key string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	taskExecutions   metric.Int64Counter
	taskLatency      metric.Float64Histogram
	taskErrors       metric.Int64Counter
	checkoutWait     metric.Float64Histogram
	checkoutFailures metric.Int64Counter
	handles          metric.Int64UpDownCounter
	initRuns         metric.Int64Counter
	initLatency      metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("workgate")

	taskExecutions, err := meter.Int64Counter("workgate.task.executions",
		metric.WithDescription("Number of task executions"),
	)
	if err != nil {
		return nil, err
	}

	taskLatency, err := meter.Float64Histogram("workgate.task.latency_ms",
		metric.WithDescription("Task execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskErrors, err := meter.Int64Counter("workgate.task.errors",
		metric.WithDescription("Number of task execution errors"),
	)
	if err != nil {
		return nil, err
	}

	checkoutWait, err := meter.Float64Histogram("workgate.checkout.wait_ms",
		metric.WithDescription("Time spent waiting for a free resource handle in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkoutFailures, err := meter.Int64Counter("workgate.checkout.failures",
		metric.WithDescription("Number of checkouts that timed out or were cancelled"),
	)
	if err != nil {
		return nil, err
	}

	handles, err := meter.Int64UpDownCounter("workgate.handles.outstanding",
		metric.WithDescription("Resource handles currently checked out"),
	)
	if err != nil {
		return nil, err
	}

	initRuns, err := meter.Int64Counter("workgate.init.runs",
		metric.WithDescription("Number of lazy initializer runs"),
	)
	if err != nil {
		return nil, err
	}

	initLatency, err := meter.Float64Histogram("workgate.init.latency_ms",
		metric.WithDescription("Lazy initialization latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		taskExecutions:   taskExecutions,
		taskLatency:      taskLatency,
		taskErrors:       taskErrors,
		checkoutWait:     checkoutWait,
		checkoutFailures: checkoutFailures,
		handles:          handles,
		initRuns:         initRuns,
		initLatency:      initLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordTaskExecution records a task execution.
func (m *otelMetrics) RecordTaskExecution(ctx context.Context, duration time.Duration, err error) {
	m.taskExecutions.Add(ctx, 1)
	m.taskLatency.Record(ctx, float64(duration.Milliseconds()))

	if err != nil {
		m.taskErrors.Add(ctx, 1)
	}
}

// RecordCheckoutWait records a checkout wait.
func (m *otelMetrics) RecordCheckoutWait(ctx context.Context, wait time.Duration, err error) {
	m.checkoutWait.Record(ctx, float64(wait.Milliseconds()))

	if err != nil {
		m.checkoutFailures.Add(ctx, 1)
	}
}

// RecordHandles adjusts the outstanding-handle gauge.
func (m *otelMetrics) RecordHandles(ctx context.Context, delta int64) {
	m.handles.Add(ctx, delta)
}

// RecordInit records a lazy initialization run.
func (m *otelMetrics) RecordInit(ctx context.Context, key string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("key", key),
		attribute.Bool("success", err == nil),
	}
	m.initRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.initLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
