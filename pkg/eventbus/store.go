package eventbus

import "context"

// ResultStore persists delivery results. Implementations live in the store
// package.
type ResultStore interface {
	// Initialize receives the handler definitions found by a discovery run.
	// It is only called with a non-empty list.
	Initialize(ctx context.Context, defs []HandlerDefinition) error

	// Store persists one batch of results in a single call. A failed batch
	// is not retried.
	Store(ctx context.Context, results []DeliveryResult) error
}
