package main

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// Heartbeat is published periodically by the daemon.
type Heartbeat struct {
	Host string `json:"host"`
	Seq  uint64 `json:"seq"`
}

// Built-in handler names, as referenced from manifests.
const (
	auditLoggerOwner   = "audit.Logger"
	auditLoggerMethod  = "Record"
	auditCounterOwner  = "audit.Counter"
	auditCounterMethod = "Count"
)

// auditLogger logs every event it receives.
type auditLogger struct {
	logger *slog.Logger
}

func (a *auditLogger) Record(_ context.Context, evt eventbus.Event) error {
	a.logger.Info("event received",
		slog.String("event_type", evt.Type()),
		slog.String("event_id", evt.ID()),
		slog.String("source", evt.Source()),
		slog.String("correlation_id", evt.CorrelationID()),
	)
	return nil
}

// auditCounter counts received events per type.
type auditCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newAuditCounter() *auditCounter {
	return &auditCounter{counts: make(map[string]int64)}
}

func (c *auditCounter) Count(_ context.Context, evt eventbus.Event) error {
	c.mu.Lock()
	c.counts[evt.Type()]++
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the counts.
func (c *auditCounter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}

// builtins holds the handlers the daemon can resolve by name.
type builtins struct {
	logger  *auditLogger
	counter *auditCounter
}

func newBuiltins(logger *slog.Logger) *builtins {
	return &builtins{
		logger:  &auditLogger{logger: logger},
		counter: newAuditCounter(),
	}
}

// methodTable binds the built-ins for resolution of manifest handlers.
func (b *builtins) methodTable() *eventbus.MethodTable {
	t := eventbus.NewMethodTable()
	t.Bind(auditLoggerOwner, auditLoggerMethod, eventbus.HandlerFunc(b.logger.Record))
	t.Bind(auditCounterOwner, auditCounterMethod, eventbus.HandlerFunc(b.counter.Count))
	return t
}

// heartbeatRegistrations subscribe the built-ins to Heartbeat. Used when no
// manifest is configured.
func (b *builtins) heartbeatRegistrations() []eventbus.Registration {
	topic := eventbus.TypeName[Heartbeat]()
	return []eventbus.Registration{
		{
			Descriptor: eventbus.Descriptor{Owner: auditLoggerOwner, Method: auditLoggerMethod, EventType: topic},
			Handler:    eventbus.HandlerFunc(b.logger.Record),
		},
		{
			Descriptor: eventbus.Descriptor{Owner: auditCounterOwner, Method: auditCounterMethod, EventType: topic},
			Handler:    eventbus.HandlerFunc(b.counter.Count),
		},
	}
}
