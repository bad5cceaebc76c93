package eventbus

import (
	"context"
	"fmt"
)

// Descriptor identifies one registered handler: the owner that declares it,
// the method name, and the event type it accepts. Descriptors are values;
// two descriptors with the same fields are the same handler.
type Descriptor struct {
	Owner     string `json:"owner" yaml:"owner"`
	Method    string `json:"method" yaml:"method"`
	EventType string `json:"event_type" yaml:"event"`
}

// String returns "Owner#Method".
func (d Descriptor) String() string {
	return d.Owner + "#" + d.Method
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc is a function that implements Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f(ctx, evt).
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Registration binds a descriptor to the callable that implements it.
// Handler may be nil, in which case it is looked up through the
// dispatcher's Resolver at invocation time.
type Registration struct {
	Descriptor
	Handler Handler
}

// On builds a registration for a typed handler. The event type is the type
// name of T, so the handler only ever sees payloads of type T. A payload of
// another type fails with ErrPayloadType.
//
// Example:
//
//	reg := eventbus.On("billing.Ledger", "OnOrderCreated",
//	    func(ctx context.Context, o OrderCreated) error {
//	        return ledger.Book(ctx, o)
//	    })
func On[T any](owner, method string, fn func(ctx context.Context, payload T) error) Registration {
	return Registration{
		Descriptor: Descriptor{
			Owner:     owner,
			Method:    method,
			EventType: TypeName[T](),
		},
		Handler: typedHandler[T](fn),
	}
}

func typedHandler[T any](fn func(context.Context, T) error) HandlerFunc {
	return func(ctx context.Context, evt Event) error {
		switch v := evt.Data().(type) {
		case T:
			return fn(ctx, v)
		case *T:
			if v != nil {
				return fn(ctx, *v)
			}
		}
		return fmt.Errorf("%w: want %s, got %T", ErrPayloadType, TypeName[T](), evt.Data())
	}
}

// Definition returns the record handed to ResultStore.Initialize.
func (r Registration) Definition(group string) HandlerDefinition {
	return HandlerDefinition{
		Owner:     r.Owner,
		Method:    r.Method,
		EventType: r.EventType,
		Group:     group,
	}
}
