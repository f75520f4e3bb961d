// Package observability provides structured logging, metrics, and
// distributed tracing for workgate.
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

// EnrichLogger adds workgate context to a logger.
// Returns a new logger with task_id and worker_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "task-9f3a21bc", 2)
//	enriched.Info("doing work") // includes task_id, worker_id
func EnrichLogger(logger *slog.Logger, taskID string, workerID int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("task_id", taskID),
		slog.Int("worker_id", workerID),
	)
}

// LogTaskStart logs the start of task execution on a worker.
func LogTaskStart(logger *slog.Logger, taskID string, workerID int) {
	if logger == nil {
		return
	}
	logger.Debug("task starting",
		slog.String("task_id", taskID),
		slog.Int("worker_id", workerID),
	)
}

// LogTaskComplete logs successful task completion.
func LogTaskComplete(logger *slog.Logger, taskID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("task completed",
		slog.String("task_id", taskID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskError logs task failure.
func LogTaskError(logger *slog.Logger, taskID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCheckout logs a completed resource checkout, including how long the
// caller waited. Long waits are the first symptom of an exhausted pool.
func LogCheckout(logger *slog.Logger, taskID string, handleID int, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("resource checked out",
		slog.String("task_id", taskID),
		slog.Int("handle_id", handleID),
		slog.Float64("wait_ms", float64(wait.Milliseconds())),
	)
}

// LogCheckoutFailed logs a checkout that timed out or was cancelled.
func LogCheckoutFailed(logger *slog.Logger, taskID string, err error, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("resource checkout failed",
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
		slog.Float64("wait_ms", float64(wait.Milliseconds())),
	)
}

// LogInitStart logs the start of a lazy initialization.
func LogInitStart(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("initialization starting",
		slog.String("key", key),
	)
}

// LogInitDone logs a finished lazy initialization, successful or not.
func LogInitDone(logger *slog.Logger, key string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("initialization failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", durationMs),
		)
		return
	}
	logger.Info("initialization completed",
		slog.String("key", key),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogUnsafeConfiguration warns that the configured policy cannot rule
// out deadlock for the given capacity and worker count.
func LogUnsafeConfiguration(logger *slog.Logger, capacity, workers int) {
	if logger == nil {
		return
	}
	logger.Warn("pool capacity below worker count without init-first ordering; deadlock possible",
		slog.Int("capacity", capacity),
		slog.Int("workers", workers),
	)
}
