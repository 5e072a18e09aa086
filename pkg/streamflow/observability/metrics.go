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

// MetricsRecorder records streamflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTask records one executed task step with its duration and
	// error status. kind is the task kind ("copy", "invoke", "reduce").
	RecordTask(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordRun records a run completion.
	RecordRun(ctx context.Context, success bool, duration time.Duration)

	// RecordReducePlan records the block grid chosen for one reduction.
	RecordReducePlan(ctx context.Context, blocks int, twoPass bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	taskExecutions metric.Int64Counter
	taskLatency    metric.Float64Histogram
	taskFaults     metric.Int64Counter
	runCount       metric.Int64Counter
	runLatency     metric.Float64Histogram
	reduceBlocks   metric.Int64Histogram
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
	meter := otel.Meter("streamflow")

	taskExecutions, err := meter.Int64Counter("streamflow.task.executions",
		metric.WithDescription("Number of executed task steps"),
	)
	if err != nil {
		return nil, err
	}

	taskLatency, err := meter.Float64Histogram("streamflow.task.latency_ms",
		metric.WithDescription("Task step latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskFaults, err := meter.Int64Counter("streamflow.task.faults",
		metric.WithDescription("Number of task step failures"),
	)
	if err != nil {
		return nil, err
	}

	runCount, err := meter.Int64Counter("streamflow.run.count",
		metric.WithDescription("Number of runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("streamflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	reduceBlocks, err := meter.Int64Histogram("streamflow.reduce.blocks",
		metric.WithDescription("Block grid size chosen per reduction"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		taskExecutions: taskExecutions,
		taskLatency:    taskLatency,
		taskFaults:     taskFaults,
		runCount:       runCount,
		runLatency:     runLatency,
		reduceBlocks:   reduceBlocks,
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

// RecordTask records one executed task step.
func (m *otelMetrics) RecordTask(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
	}

	m.taskExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.taskLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.taskFaults.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRun records a run completion.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.runCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordReducePlan records the block grid chosen for one reduction.
func (m *otelMetrics) RecordReducePlan(ctx context.Context, blocks int, twoPass bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("two_pass", twoPass),
	}
	m.reduceBlocks.Record(ctx, int64(blocks), metric.WithAttributes(attrs...))
}
