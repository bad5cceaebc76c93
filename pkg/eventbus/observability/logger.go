// Package observability provides logging, metrics, and tracing helpers for
// the event bus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds event context to a logger.
// Returns a new logger with event_type and event_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "OrderCreated", "3f1c...")
//	enriched.Info("dispatching") // includes event_type, event_id
func EnrichLogger(logger *slog.Logger, eventType, eventID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
	)
}

// LogDispatchComplete logs the aggregated outcome of one dispatch.
func LogDispatchComplete(logger *slog.Logger, status string, handlers int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatched",
		slog.String("status", status),
		slog.Int("handlers", handlers),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStaleEvent logs an event skipped because it exceeded the staleness window.
func LogStaleEvent(logger *slog.Logger, age time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("event too old, handlers skipped",
		slog.String("age", age.String()),
	)
}

// LogNoHandlers logs an event with no registered handler.
func LogNoHandlers(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Debug("no handler registered for event")
}

// LogHandlerError logs a failed handler invocation.
func LogHandlerError(logger *slog.Logger, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event handler failed",
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogFlush logs a successful result flush.
func LogFlush(logger *slog.Logger, batchSize int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("delivery results flushed",
		slog.Int("batch_size", batchSize),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFlushError logs a failed result flush. The batch is not retried.
func LogFlushError(logger *slog.Logger, batchSize int, err error) {
	if logger == nil {
		return
	}
	logger.Error("store delivery results failed",
		slog.Int("batch_size", batchSize),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
