// Package observability provides production-grade observability for
// streamflow runs: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, tasks, queues int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Int("tasks", tasks),
		slog.Int("queues", queues),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stepsExecuted int64) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int64("steps_executed", stepsExecuted),
	)
}

// LogRunFault logs run failure.
func LogRunFault(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskStart logs task execution start.
func LogTaskStart(logger *slog.Logger, task string, queue int) {
	if logger == nil {
		return
	}
	logger.Debug("task starting",
		slog.String("task", task),
		slog.Int("queue", queue),
	)
}

// LogTaskComplete logs successful task completion.
func LogTaskComplete(logger *slog.Logger, task string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("task completed",
		slog.String("task", task),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskFault logs a task failure.
func LogTaskFault(logger *slog.Logger, task string, err error) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.String("task", task),
		slog.String("error", err.Error()),
	)
}

// LogTaskSkipped logs a task step abandoned because the run already
// faulted.
func LogTaskSkipped(logger *slog.Logger, task string) {
	if logger == nil {
		return
	}
	logger.Debug("task skipped after fault",
		slog.String("task", task),
	)
}

// LogHistoryError logs a run history append failure (non-fatal).
func LogHistoryError(logger *slog.Logger, runID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("run history append failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
