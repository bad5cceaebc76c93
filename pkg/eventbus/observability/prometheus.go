package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements MetricsRecorder with Prometheus collectors.
// Use it when the process exposes a /metrics endpoint instead of exporting
// through an OpenTelemetry pipeline.
type PrometheusRecorder struct {
	deliveries        *prometheus.CounterVec
	deliveryLatency   *prometheus.HistogramVec
	invocations       *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec
	flushes           *prometheus.CounterVec
	flushSize         prometheus.Histogram
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// Registration fails if collectors with the same names already exist.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventbus",
				Name:      "deliveries_total",
				Help:      "Dispatched events by event type and status",
			},
			[]string{"event_type", "status"},
		),
		deliveryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventbus",
				Name:      "delivery_duration_seconds",
				Help:      "Time to dispatch an event to all its handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventbus",
				Subsystem: "handler",
				Name:      "invocations_total",
				Help:      "Handler invocations by handler and outcome",
			},
			[]string{"event_type", "handler", "success"},
		),
		invocationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventbus",
				Subsystem: "handler",
				Name:      "duration_seconds",
				Help:      "Handler invocation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type", "handler"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventbus",
				Subsystem: "flush",
				Name:      "batches_total",
				Help:      "Delivery result batches handed to the store",
			},
			[]string{"success"},
		),
		flushSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "eventbus",
				Subsystem: "flush",
				Name:      "batch_size",
				Help:      "Delivery results per flushed batch",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}

	for _, c := range []prometheus.Collector{
		r.deliveries, r.deliveryLatency, r.invocations,
		r.invocationLatency, r.flushes, r.flushSize,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordDelivery records a dispatched event.
func (r *PrometheusRecorder) RecordDelivery(_ context.Context, eventType, status string, duration time.Duration) {
	r.deliveries.WithLabelValues(eventType, status).Inc()
	r.deliveryLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordInvocation records a handler invocation.
func (r *PrometheusRecorder) RecordInvocation(_ context.Context, eventType, handler string, duration time.Duration, err error) {
	r.invocations.WithLabelValues(eventType, handler, strconv.FormatBool(err == nil)).Inc()
	r.invocationLatency.WithLabelValues(eventType, handler).Observe(duration.Seconds())
}

// RecordFlush records a flush.
func (r *PrometheusRecorder) RecordFlush(_ context.Context, batchSize int, err error) {
	r.flushes.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	r.flushSize.Observe(float64(batchSize))
}
