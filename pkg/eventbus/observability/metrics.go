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

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder() for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDelivery records one dispatched event and its aggregated status.
	RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration)

	// RecordInvocation records one handler invocation with its error status.
	RecordInvocation(ctx context.Context, eventType, handler string, duration time.Duration, err error)

	// RecordFlush records one flush of delivery results to the store.
	RecordFlush(ctx context.Context, batchSize int, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	deliveries        metric.Int64Counter
	deliveryLatency   metric.Float64Histogram
	invocations       metric.Int64Counter
	invocationLatency metric.Float64Histogram
	invocationErrors  metric.Int64Counter
	flushes           metric.Int64Counter
	flushSize         metric.Int64Histogram
	flushErrors       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	deliveries, err := meter.Int64Counter("eventbus.deliveries",
		metric.WithDescription("Number of dispatched events by status"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("eventbus.delivery.latency_ms",
		metric.WithDescription("Time to dispatch an event to all its handlers"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("eventbus.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	invocationLatency, err := meter.Float64Histogram("eventbus.handler.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	invocationErrors, err := meter.Int64Counter("eventbus.handler.errors",
		metric.WithDescription("Number of failed handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	flushes, err := meter.Int64Counter("eventbus.flush.batches",
		metric.WithDescription("Number of delivery result batches handed to the store"),
	)
	if err != nil {
		return nil, err
	}

	flushSize, err := meter.Int64Histogram("eventbus.flush.size",
		metric.WithDescription("Delivery results per flushed batch"),
	)
	if err != nil {
		return nil, err
	}

	flushErrors, err := meter.Int64Counter("eventbus.flush.errors",
		metric.WithDescription("Number of batches the store rejected"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		deliveries:        deliveries,
		deliveryLatency:   deliveryLatency,
		invocations:       invocations,
		invocationLatency: invocationLatency,
		invocationErrors:  invocationErrors,
		flushes:           flushes,
		flushSize:         flushSize,
		flushErrors:       flushErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
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

// RecordDelivery records a dispatched event.
func (m *otelMetrics) RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	)
	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, msec(duration), attrs)
}

// RecordInvocation records a handler invocation.
func (m *otelMetrics) RecordInvocation(ctx context.Context, eventType, handler string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("handler", handler),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.invocationLatency.Record(ctx, msec(duration), attrs)
	if err != nil {
		m.invocationErrors.Add(ctx, 1, attrs)
	}
}

// RecordFlush records a flush.
func (m *otelMetrics) RecordFlush(ctx context.Context, batchSize int, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.flushes.Add(ctx, 1, attrs)
	m.flushSize.Record(ctx, int64(batchSize), attrs)
	if err != nil {
		m.flushErrors.Add(ctx, 1)
	}
}

func msec(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
