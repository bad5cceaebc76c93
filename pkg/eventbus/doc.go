// Package eventbus is an in-process event bus.
//
// # Overview
//
// Producers publish events; a Dispatcher looks up every handler registered
// for the event's type, invokes each one through an interceptor chain, and
// records a ConsumerResult per handler plus an aggregated DeliveryResult.
// Results can be queued for a ResultStore and flushed in batches.
//
//	d := eventbus.NewDispatcher(eventbus.Config{
//	    Group: "shop",
//	    Store: store.NewMemoryStore(),
//	})
//	d.Register(eventbus.On("billing.Ledger", "OnOrderCreated",
//	    func(ctx context.Context, o OrderCreated) error {
//	        return ledger.Book(ctx, o)
//	    }))
//	d.Start(ctx)
//	defer d.Close(ctx)
//
//	_ = d.Enqueue(ctx, eventbus.Of(OrderCreated{ID: "o-1"}))
//
// # Routing
//
// The routing key is Event.Type. Of and On derive it from the Go type name
// of the payload, so Of(OrderCreated{}) reaches handlers built with
// On[OrderCreated]. New takes an explicit routing key.
//
// # Delivery status
//
//   - SUCCESS: every handler succeeded
//   - PARTIAL_SUCCESS: some handlers failed
//   - FAIL: every handler failed, or no handler is registered
//   - TIMEOUT: the event was older than Config.StaleAfter; no handler ran
//
// # Failures
//
// Handler errors and panics never reach the publisher. Each one is recorded
// on the ConsumerResult and passed to Interceptor.OnError as an
// *InvocationError. Registrations without a handler are resolved through
// Config.Resolver; a resolution failure is recorded the same way.
//
// # Persistence
//
// With Config.Store set, results are queued on a bounded Pipeline and
// flushed every Config.FlushInterval. A batch the store rejects is logged
// and dropped. Close waits for running dispatches and flushes what is left.
package eventbus
