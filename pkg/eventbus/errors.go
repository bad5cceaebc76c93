package eventbus

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrClosed is returned by Enqueue after the dispatcher is closed.
	ErrClosed = errors.New("dispatcher closed")

	// ErrPipelineClosed is returned by Pipeline.Put after Stop.
	ErrPipelineClosed = errors.New("result pipeline closed")

	// ErrNoResolver means a registration has no bound handler and the
	// invoker has no Resolver to look one up.
	ErrNoResolver = errors.New("no handler bound and no resolver configured")

	// ErrNoDiscoverer is returned by InitializeFromDiscovery when the
	// dispatcher has no Discoverer.
	ErrNoDiscoverer = errors.New("no discoverer configured")

	// ErrNotResolvable is returned by resolvers that do not know a descriptor.
	ErrNotResolvable = errors.New("handler not resolvable")

	// ErrPayloadType is returned by typed handlers that receive a payload of
	// another type than the one they were registered for.
	ErrPayloadType = errors.New("unexpected payload type")
)

// FailureKind distinguishes why an invocation failed.
type FailureKind int

const (
	// FailureHandler means the handler ran and returned an error or panicked.
	FailureHandler FailureKind = iota

	// FailureResolution means no callable could be found for the descriptor.
	FailureResolution
)

// String returns the kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureHandler:
		return "handler"
	case FailureResolution:
		return "resolution"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// InvocationError is the failure passed to Interceptor.OnError.
type InvocationError struct {
	Kind       FailureKind
	Descriptor Descriptor
	Err        error
}

// Error implements error interface.
func (e *InvocationError) Error() string {
	switch e.Kind {
	case FailureResolution:
		return fmt.Sprintf("resolve %s: %v", e.Descriptor, e.Err)
	default:
		return fmt.Sprintf("invoke %s: %v", e.Descriptor, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Message is the text recorded on a failed ConsumerResult. A handler
// failure surfaces the handler's own error, not the invocation wrapper.
// A resolution failure keeps the full resolution message.
func (e *InvocationError) Message() string {
	switch e.Kind {
	case FailureHandler:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "handler failed"
	default:
		return e.Error()
	}
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

// Error implements error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
