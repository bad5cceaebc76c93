package eventbus

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Invocation describes one handler call as seen by interceptors.
type Invocation struct {
	Event      Event
	Descriptor Descriptor
}

// Interceptor observes handler invocations. For every invocation Before is
// called once, followed by exactly one of After (success) or OnError
// (failure).
//
// Before may return a derived context. It is passed to the next
// interceptor, to the handler, and to the closing hook.
type Interceptor interface {
	Before(ctx context.Context, inv Invocation) context.Context
	After(ctx context.Context, inv Invocation)
	OnError(ctx context.Context, inv Invocation, err error)
}

// InterceptorFuncs adapts optional functions to Interceptor. Nil fields
// are no-ops.
type InterceptorFuncs struct {
	BeforeFunc  func(ctx context.Context, inv Invocation) context.Context
	AfterFunc   func(ctx context.Context, inv Invocation)
	OnErrorFunc func(ctx context.Context, inv Invocation, err error)
}

// Before calls BeforeFunc if set.
func (f InterceptorFuncs) Before(ctx context.Context, inv Invocation) context.Context {
	if f.BeforeFunc == nil {
		return ctx
	}
	if next := f.BeforeFunc(ctx, inv); next != nil {
		return next
	}
	return ctx
}

// After calls AfterFunc if set.
func (f InterceptorFuncs) After(ctx context.Context, inv Invocation) {
	if f.AfterFunc != nil {
		f.AfterFunc(ctx, inv)
	}
}

// OnError calls OnErrorFunc if set.
func (f InterceptorFuncs) OnError(ctx context.Context, inv Invocation, err error) {
	if f.OnErrorFunc != nil {
		f.OnErrorFunc(ctx, inv, err)
	}
}

// Chain runs interceptors in registration order. The zero Chain is empty
// and every hook is a no-op. A Chain is immutable after creation.
//
// Panics raised by interceptors are not recovered here.
type Chain struct {
	interceptors []Interceptor
}

// NewChain creates a chain. Nil interceptors are skipped.
func NewChain(interceptors ...Interceptor) Chain {
	list := make([]Interceptor, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			list = append(list, i)
		}
	}
	return Chain{interceptors: list}
}

// Len returns the number of interceptors.
func (c Chain) Len() int { return len(c.interceptors) }

// Before runs every Before hook, threading the returned context.
func (c Chain) Before(ctx context.Context, inv Invocation) context.Context {
	for _, i := range c.interceptors {
		ctx = i.Before(ctx, inv)
	}
	return ctx
}

// After runs every After hook.
func (c Chain) After(ctx context.Context, inv Invocation) {
	for _, i := range c.interceptors {
		i.After(ctx, inv)
	}
}

// OnError runs every OnError hook.
func (c Chain) OnError(ctx context.Context, inv Invocation, err error) {
	for _, i := range c.interceptors {
		i.OnError(ctx, inv, err)
	}
}

// LoggingInterceptor logs every invocation at debug level and every
// failure at error level.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return InterceptorFuncs{
		BeforeFunc: func(ctx context.Context, inv Invocation) context.Context {
			logger.DebugContext(ctx, "invoking handler",
				slog.String("handler", inv.Descriptor.String()),
				slog.String("event_type", inv.Descriptor.EventType),
				slog.String("event_id", inv.Event.ID()),
			)
			return ctx
		},
		OnErrorFunc: func(_ context.Context, inv Invocation, err error) {
			observability.LogHandlerError(
				observability.EnrichLogger(logger, inv.Descriptor.EventType, inv.Event.ID()),
				inv.Descriptor.String(), err)
		},
	}
}

type invocationStartKey struct{}

// MetricsInterceptor records the latency and outcome of every invocation.
func MetricsInterceptor(m observability.MetricsRecorder) Interceptor {
	if m == nil {
		m = observability.NoopMetrics{}
	}
	record := func(ctx context.Context, inv Invocation, err error) {
		var elapsed time.Duration
		if start, ok := ctx.Value(invocationStartKey{}).(time.Time); ok {
			elapsed = time.Since(start)
		}
		m.RecordInvocation(ctx, inv.Descriptor.EventType, inv.Descriptor.String(), elapsed, err)
	}
	return InterceptorFuncs{
		BeforeFunc: func(ctx context.Context, _ Invocation) context.Context {
			return context.WithValue(ctx, invocationStartKey{}, time.Now())
		},
		AfterFunc: func(ctx context.Context, inv Invocation) {
			record(ctx, inv, nil)
		},
		OnErrorFunc: record,
	}
}

type handlerSpanKey struct{}

// TracingInterceptor wraps every invocation in a handler span. The span is
// a child of whatever span is active in the dispatch context.
func TracingInterceptor(spans observability.SpanManager) Interceptor {
	if spans == nil {
		spans = observability.NoopSpanManager{}
	}
	end := func(ctx context.Context, err error) {
		if span, ok := ctx.Value(handlerSpanKey{}).(trace.Span); ok {
			spans.EndSpanWithError(span, err)
		}
	}
	return InterceptorFuncs{
		BeforeFunc: func(ctx context.Context, inv Invocation) context.Context {
			ctx, span := spans.StartHandlerSpan(ctx, inv.Descriptor.String())
			return context.WithValue(ctx, handlerSpanKey{}, span)
		},
		AfterFunc: func(ctx context.Context, _ Invocation) {
			end(ctx, nil)
		},
		OnErrorFunc: func(ctx context.Context, _ Invocation, err error) {
			end(ctx, err)
		},
	}
}
