package streamflow

import (
	"log/slog"

	"github.com/randalmurphal/streamflow/pkg/streamflow/observability"
	"github.com/randalmurphal/streamflow/pkg/streamflow/runlog"
)

// compileConfig holds configuration for graph compilation.
type compileConfig struct {
	blockSize int
}

// defaultCompileConfig returns the default compilation configuration.
func defaultCompileConfig() compileConfig {
	return compileConfig{}
}

// CompileOption configures compilation behavior.
type CompileOption func(*compileConfig)

// WithBlockSize forces the reduction block size instead of letting the
// planner derive one from the device width. Each reduction then runs
// ceil(n / size) blocks. Values below 1 are ignored.
//
// This mainly exists for tests and benchmarks that need to pin down the
// partitioning; production code normally leaves the planner alone.
//
// Example:
//
//	compiled, err := graph.Compile(dev, streamflow.WithBlockSize(4096))
func WithBlockSize(size int) CompileOption {
	return func(c *compileConfig) {
		if size > 0 {
			c.blockSize = size
		}
	}
}

// runConfig holds configuration for one run of a compiled graph.
type runConfig struct {
	runID string

	logger *slog.Logger

	metrics observability.MetricsRecorder

	spans          observability.SpanManager
	tracingEnabled bool

	history runlog.Store
}

// defaultRunConfig returns the default run configuration: no logging, no
// metrics, no tracing, no run history.
func defaultRunConfig() runConfig {
	return runConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// RunOption configures one run of a compiled graph.
type RunOption func(*runConfig)

// WithRunID sets the run identifier used in logs, spans, and run history
// records. When not given, each run gets a fresh UUID.
//
// Example:
//
//	handle := compiled.Run(ctx, streamflow.WithRunID("nightly-42"))
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithLogger enables structured logging for the run. Run lifecycle events
// log at Info, per-task events at Debug. A nil logger leaves the run
// silent, which is the default.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	handle := compiled.Run(ctx, streamflow.WithLogger(logger))
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics collection.
// Default: disabled (no-op recorder).
//
// When enabled, the run records task executions, task and run latency,
// task faults, and reduction block counts through the global OTel meter
// provider. Without a configured provider the recorder is a no-op, so
// enabling metrics never fails.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry tracing.
// Default: disabled (no-op spans).
//
// When enabled, each run produces a streamflow.run span with one child
// span per executed task step, plus barrier record/wait events. Spans go
// through the global OTel tracer provider; without one they are no-ops.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithRunLog appends a run history record to store when the run
// completes. Append failures are logged through the run's logger and
// never fault the run.
//
// Example:
//
//	store, err := runlog.NewSQLiteStore("./runs.db")
//	if err != nil { ... }
//	defer store.Close()
//
//	handle := compiled.Run(ctx, streamflow.WithRunLog(store))
func WithRunLog(store runlog.Store) RunOption {
	return func(c *runConfig) {
		c.history = store
	}
}
