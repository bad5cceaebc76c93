package eventbus

import (
	"slices"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// NoneTopic is reported by Topics when nothing is registered, so topic
// subscribers always have at least one topic to bind to.
const NoneTopic = "none-topic"

// HandlerRegistry maps event types to the set of handlers registered for
// them. Registration is append-only and idempotent. Safe for concurrent use.
type HandlerRegistry struct {
	byType   *registry.Multi[string, Descriptor]
	handlers *registry.Registry[Descriptor, Handler]
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byType:   registry.NewMulti[string, Descriptor](),
		handlers: registry.New[Descriptor, Handler](),
	}
}

// Register adds reg under its event type. It returns false when reg has no
// event type or an identical descriptor is already registered. The first
// non-nil handler bound to a descriptor wins.
func (r *HandlerRegistry) Register(reg Registration) bool {
	if reg.EventType == "" {
		return false
	}
	// Bind before publishing the descriptor so a concurrent lookup never
	// sees a descriptor whose handler is still missing.
	if reg.Handler != nil {
		r.handlers.Register(reg.Descriptor, reg.Handler)
	}
	return r.byType.Add(reg.EventType, reg.Descriptor)
}

// Lookup returns the registrations for eventType in registration order.
// The returned slice is a snapshot owned by the caller.
func (r *HandlerRegistry) Lookup(eventType string) []Registration {
	descs := r.byType.Get(eventType)
	regs := make([]Registration, len(descs))
	for i, d := range descs {
		h, _ := r.handlers.Get(d)
		regs[i] = Registration{Descriptor: d, Handler: h}
	}
	return regs
}

// Topics returns the registered event types in sorted order, or
// []string{NoneTopic} when the registry is empty.
func (r *HandlerRegistry) Topics() []string {
	topics := r.byType.Keys()
	if len(topics) == 0 {
		return []string{NoneTopic}
	}
	slices.Sort(topics)
	return topics
}

// Len returns the number of registered descriptors across all event types.
func (r *HandlerRegistry) Len() int {
	return r.byType.Size()
}

// Descriptors returns every registered descriptor, grouped by event type in
// sorted order.
func (r *HandlerRegistry) Descriptors() []Descriptor {
	topics := r.byType.Keys()
	slices.Sort(topics)
	out := make([]Descriptor, 0, r.byType.Size())
	for _, t := range topics {
		out = append(out, r.byType.Get(t)...)
	}
	return out
}
