// Package store provides eventbus.ResultStore implementations.
//
//   - MemoryStore: in-process, for tests and single-instance use
//   - SQLiteStore: embedded database (modernc.org/sqlite, no cgo)
//   - PostgresStore: shared database (pgx)
//   - RedisStore: capped list of recent deliveries (go-redis)
//   - KafkaStore: publishes deliveries for a remote control plane (kafka-go)
//
// Tee writes to several stores at once. Open builds stores from
// config.StoreSettings.
//
// All stores persist the same Record shape. Stores that can be read back
// implement Querier and DefinitionLister.
package store

import (
	"context"
	"errors"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("store closed")

// Querier lists recent deliveries, newest first.
type Querier interface {
	Deliveries(ctx context.Context, limit int) ([]Record, error)
}

// DefinitionLister lists the handler definitions recorded by Initialize.
type DefinitionLister interface {
	Definitions(ctx context.Context) ([]eventbus.HandlerDefinition, error)
}
