package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Config configures a Dispatcher.
type Config struct {
	// Group labels every DeliveryResult and HandlerDefinition, typically the
	// application name.
	Group string

	// StaleAfter is the maximum event age. Older events are not handed to
	// any handler and complete with StatusTimeout.
	// Default: 24 hours
	StaleAfter time.Duration

	// MaxConcurrency caps concurrent dispatches. Enqueue blocks while the
	// cap is reached.
	// Default: 0 (unlimited)
	MaxConcurrency int

	// HandlerConcurrency caps concurrent handlers within one dispatch.
	// Default: 0 (unlimited)
	HandlerConcurrency int

	// FlushInterval is how often results are flushed to Store.
	// Default: 10 seconds
	FlushInterval time.Duration

	// QueueCapacity bounds the result queue.
	// Default: 1024
	QueueCapacity int

	// Store persists delivery results (optional). Without a store results
	// are discarded after dispatch and no flush loop runs. With a store,
	// call Start to flush periodically: until then results accumulate and
	// dispatches block once QueueCapacity results are queued.
	Store ResultStore

	// Resolver finds handlers for registrations without one (optional).
	Resolver Resolver

	// Discoverer backs InitializeFromDiscovery (optional).
	Discoverer Discoverer

	// Interceptors run around every handler invocation, in order.
	Interceptors []Interceptor

	// Logger. Default: slog.Default()
	Logger *slog.Logger

	// Metrics. Default: NoopMetrics
	Metrics observability.MetricsRecorder

	// Spans. Default: NoopSpanManager
	Spans observability.SpanManager

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	StaleAfter:    24 * time.Hour,
	FlushInterval: DefaultPipelineConfig.FlushInterval,
	QueueCapacity: DefaultPipelineConfig.Capacity,
}

// Dispatcher routes events to the handlers registered for their type,
// collects one ConsumerResult per handler and an aggregated DeliveryResult,
// and optionally queues the result for a ResultStore.
type Dispatcher struct {
	cfg      Config
	registry *HandlerRegistry
	invoker  *Invoker
	pipeline *Pipeline
	workers  *semaphore.Weighted
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher with an empty handler registry.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig.StaleAfter
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig.FlushInterval
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig.QueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	d := &Dispatcher{
		cfg:      cfg,
		registry: NewHandlerRegistry(),
		invoker:  NewInvoker(NewChain(cfg.Interceptors...), cfg.Resolver),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		spans:    cfg.Spans,
	}
	if cfg.MaxConcurrency > 0 {
		d.workers = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	}
	if cfg.Store != nil {
		d.pipeline = NewPipeline(cfg.Store, PipelineConfig{
			Capacity:      cfg.QueueCapacity,
			FlushInterval: cfg.FlushInterval,
			Logger:        cfg.Logger,
			Metrics:       cfg.Metrics,
		})
	}
	return d
}

// Registry returns the dispatcher's handler registry.
func (d *Dispatcher) Registry() *HandlerRegistry {
	return d.registry
}

// Pipeline returns the result pipeline, or nil when no store is configured.
func (d *Dispatcher) Pipeline() *Pipeline {
	return d.pipeline
}

// Register adds registrations and returns how many were new.
func (d *Dispatcher) Register(regs ...Registration) int {
	added := 0
	for _, reg := range regs {
		if d.registry.Register(reg) {
			added++
		}
	}
	return added
}

// ListTopics returns the registered event types, or []string{NoneTopic}.
func (d *Dispatcher) ListTopics() []string {
	return d.registry.Topics()
}

// Definitions returns the registered handlers stamped with the dispatcher's
// Group, in the order of Registry().Descriptors().
func (d *Dispatcher) Definitions() []HandlerDefinition {
	descs := d.registry.Descriptors()
	defs := make([]HandlerDefinition, len(descs))
	for i, desc := range descs {
		defs[i] = Registration{Descriptor: desc}.Definition(d.cfg.Group)
	}
	return defs
}

// InitializeFromDiscovery registers every handler the Discoverer finds
// under source. When a Store is configured and handlers were found, their
// definitions are handed to Store.Initialize. A blank source is logged and
// ignored.
func (d *Dispatcher) InitializeFromDiscovery(ctx context.Context, source string) error {
	if strings.TrimSpace(source) == "" {
		d.logger.Warn("discovery source is blank, no handlers registered")
		return nil
	}
	if d.cfg.Discoverer == nil {
		return ErrNoDiscoverer
	}

	regs, err := d.cfg.Discoverer.Discover(ctx, source)
	if err != nil {
		return fmt.Errorf("discover %q: %w", source, err)
	}

	defs := make([]HandlerDefinition, 0, len(regs))
	for _, reg := range regs {
		if reg.EventType == "" {
			continue
		}
		d.registry.Register(reg)
		defs = append(defs, reg.Definition(d.cfg.Group))
	}
	d.logger.Info("handlers discovered",
		slog.String("source", source),
		slog.Int("handlers", len(defs)),
	)

	if d.cfg.Store == nil || len(defs) == 0 {
		return nil
	}
	if err := d.cfg.Store.Initialize(ctx, defs); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	return nil
}

// Enqueue schedules evt for dispatch on a worker goroutine and returns
// without waiting for handlers. A nil event is logged and dropped.
//
// Enqueue blocks while MaxConcurrency dispatches are running. It fails with
// ErrClosed after Close, or with the context error if ctx ends while
// waiting for a worker. Handlers run with a context that keeps the values
// of ctx but is not cancelled with it.
func (d *Dispatcher) Enqueue(ctx context.Context, evt Event) error {
	if evt == nil {
		d.logger.Warn("nil event ignored")
		return nil
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	d.inflight.Add(1)
	d.mu.RUnlock()

	if d.workers != nil {
		if err := d.workers.Acquire(ctx, 1); err != nil {
			d.inflight.Done()
			return err
		}
	}

	go func() {
		defer d.inflight.Done()
		if d.workers != nil {
			defer d.workers.Release(1)
		}
		d.Handle(context.WithoutCancel(ctx), evt)
	}()
	return nil
}

// Handle dispatches evt synchronously and returns its DeliveryResult.
// The result is queued for the store when one is configured.
func (d *Dispatcher) Handle(ctx context.Context, evt Event) DeliveryResult {
	if evt == nil {
		d.logger.Warn("nil event ignored")
		return DeliveryResult{Group: d.cfg.Group, Status: StatusFail}
	}

	elapsed := observability.TimedOperation()
	start := d.cfg.Clock()
	logger := observability.EnrichLogger(d.logger, evt.Type(), evt.ID())

	ctx, span := d.spans.StartDispatchSpan(ctx, evt.Type(), evt.ID())

	result := DeliveryResult{
		ID:           uuid.New().String(),
		Event:        evt,
		EventType:    evt.Type(),
		Group:        d.cfg.Group,
		Items:        []ConsumerResult{},
		DispatchedAt: start,
	}

	if age := start.Sub(evt.Timestamp()); age > d.cfg.StaleAfter {
		observability.LogStaleEvent(logger, age)
		result.Status = StatusTimeout
	} else if regs := d.registry.Lookup(evt.Type()); len(regs) == 0 {
		observability.LogNoHandlers(logger)
		result.Status = StatusFail
	} else {
		result.Items = d.invokeAll(ctx, logger, regs, evt)
		result.Status = Aggregate(result.Items)
	}
	result.CompletedAt = d.cfg.Clock()

	durationMs := elapsed()
	d.metrics.RecordDelivery(ctx, evt.Type(), string(result.Status),
		time.Duration(durationMs*float64(time.Millisecond)))
	observability.LogDispatchComplete(logger, string(result.Status), len(result.Items), durationMs)
	d.spans.AddSpanEvent(ctx, "eventbus.delivered",
		attribute.String("status", string(result.Status)),
		attribute.Int("handlers", len(result.Items)),
	)
	d.spans.EndSpanWithError(span, nil)

	if d.pipeline != nil {
		if err := d.pipeline.Put(ctx, result); err != nil {
			logger.Warn("delivery result not queued",
				slog.String("status", string(result.Status)),
				slog.String("error", err.Error()),
			)
		}
	}
	return result
}

// invokeAll runs every registration and returns the results in
// registration order.
func (d *Dispatcher) invokeAll(ctx context.Context, logger *slog.Logger, regs []Registration, evt Event) []ConsumerResult {
	items := make([]ConsumerResult, len(regs))
	if len(regs) == 1 {
		items[0] = d.invoke(ctx, logger, regs[0], evt)
		return items
	}

	var g errgroup.Group
	if d.cfg.HandlerConcurrency > 0 {
		g.SetLimit(d.cfg.HandlerConcurrency)
	}
	for i, reg := range regs {
		g.Go(func() error {
			items[i] = d.invoke(ctx, logger, reg, evt)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// invoke contains a panic raised by an interceptor to the one handler it
// wrapped. Handler panics are already recovered by the Invoker.
func (d *Dispatcher) invoke(ctx context.Context, logger *slog.Logger, reg Registration, evt Event) (res ConsumerResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("interceptor panicked",
				slog.String("handler", reg.Descriptor.String()),
				slog.Any("panic", r),
			)
			res = ConsumerResult{
				Owner:   reg.Owner,
				Method:  reg.Method,
				Message: fmt.Sprintf("interceptor panicked: %v", r),
			}
		}
	}()
	return d.invoker.Invoke(ctx, reg, evt)
}

// Flush hands queued results to the store immediately.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	if d.pipeline == nil {
		return 0, nil
	}
	return d.pipeline.Flush(ctx)
}

// Start launches the periodic result flush. It is a no-op without a store.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.pipeline != nil {
		d.pipeline.Start(ctx)
	}
}

// Close stops accepting events, waits for running dispatches and flushes
// the remaining results. If ctx ends first, Close returns its error and the
// flush loop keeps running; calling Close again resumes the wait and the
// final flush.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	// Workers blocked on a full queue need a running flush loop to finish.
	if d.pipeline != nil {
		d.pipeline.Start(context.WithoutCancel(ctx))
	}

	idle := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d.pipeline == nil {
		return nil
	}
	return d.pipeline.Stop(ctx)
}
