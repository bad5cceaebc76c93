package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// PipelineConfig configures the result pipeline.
type PipelineConfig struct {
	// Capacity bounds the queue. Put blocks while the queue is full.
	// Default: 1024
	Capacity int

	// FlushInterval is how often queued results are handed to the store.
	// Default: 10 seconds
	FlushInterval time.Duration

	// Logger for flush outcomes. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records flush batches. Default: NoopMetrics
	Metrics observability.MetricsRecorder
}

// DefaultPipelineConfig provides reasonable defaults.
var DefaultPipelineConfig = PipelineConfig{
	Capacity:      1024,
	FlushInterval: 10 * time.Second,
}

// Pipeline queues delivery results and periodically flushes them to a
// ResultStore in batches. Delivery to the store is at most once: a batch
// the store rejects is logged and dropped.
type Pipeline struct {
	store ResultStore
	cfg   PipelineConfig
	queue chan DeliveryResult

	drainMu sync.Mutex // serialises Drain

	mu      sync.Mutex
	running bool
	stopped bool
	closing chan struct{}
	done    chan struct{}
}

// NewPipeline creates a pipeline that flushes into store.
func NewPipeline(store ResultStore, cfg PipelineConfig) *Pipeline {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultPipelineConfig.Capacity
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultPipelineConfig.FlushInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &Pipeline{
		store:   store,
		cfg:     cfg,
		queue:   make(chan DeliveryResult, cfg.Capacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Put queues r, blocking while the queue is full. It fails with
// ErrPipelineClosed once Stop was called, or with the context error.
func (p *Pipeline) Put(ctx context.Context, r DeliveryResult) error {
	select {
	case <-p.closing:
		return ErrPipelineClosed
	default:
	}
	select {
	case p.queue <- r:
		return nil
	case <-p.closing:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued results.
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// Drain removes and returns everything currently queued.
func (p *Pipeline) Drain() []DeliveryResult {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	n := len(p.queue)
	if n == 0 {
		return nil
	}
	batch := make([]DeliveryResult, 0, n)
	for range n {
		select {
		case r := <-p.queue:
			batch = append(batch, r)
		default:
			return batch
		}
	}
	return batch
}

// Flush drains the queue and hands the batch to the store in one call.
// It returns the batch size and the store error, if any. A failed batch is
// not requeued.
func (p *Pipeline) Flush(ctx context.Context) (int, error) {
	batch := p.Drain()
	if len(batch) == 0 {
		return 0, nil
	}

	elapsed := observability.TimedOperation()
	err := p.store.Store(ctx, batch)
	p.cfg.Metrics.RecordFlush(ctx, len(batch), err)
	if err != nil {
		observability.LogFlushError(p.cfg.Logger, len(batch), err)
		return len(batch), err
	}
	observability.LogFlush(p.cfg.Logger, len(batch), elapsed())
	return len(batch), nil
}

// Start launches the periodic flush loop. Calling Start more than once, or
// after Stop, has no effect.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
}

// run is the flush loop.
func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closing:
			return
		case <-ticker.C:
			_, _ = p.Flush(ctx)
		}
	}
}

// Stop halts the flush loop, rejects further Puts and flushes whatever is
// still queued. It returns the error of that final flush. If ctx ends while
// the loop is finishing, a later Stop resumes the wait and the flush.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.closing)
	}
	wasRunning := p.running
	p.mu.Unlock()

	if wasRunning {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := p.Flush(ctx)
	return err
}
