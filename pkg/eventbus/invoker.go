package eventbus

import (
	"context"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// Resolver finds the callable for a descriptor that was registered without
// one, for example from a manifest that only names owner and method.
type Resolver interface {
	Resolve(ctx context.Context, d Descriptor) (Handler, error)
}

// ResolverFunc is a function that implements Resolver.
type ResolverFunc func(ctx context.Context, d Descriptor) (Handler, error)

// Resolve calls f(ctx, d).
func (f ResolverFunc) Resolve(ctx context.Context, d Descriptor) (Handler, error) {
	return f(ctx, d)
}

type methodKey struct {
	owner  string
	method string
}

// MethodTable is a Resolver backed by an explicit table of
// (owner, method) bindings. The first binding for a pair wins.
type MethodTable struct {
	methods *registry.Registry[methodKey, Handler]
}

// NewMethodTable creates an empty table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: registry.New[methodKey, Handler]()}
}

// Bind registers h as owner's method. It reports whether the binding was
// added.
func (t *MethodTable) Bind(owner, method string, h Handler) bool {
	if h == nil {
		return false
	}
	return t.methods.Register(methodKey{owner: owner, method: method}, h)
}

// Resolve returns the handler bound to d's owner and method.
func (t *MethodTable) Resolve(_ context.Context, d Descriptor) (Handler, error) {
	h, ok := t.methods.Get(methodKey{owner: d.Owner, method: d.Method})
	if !ok {
		return nil, ErrNotResolvable
	}
	return h, nil
}

// Len returns the number of bindings.
func (t *MethodTable) Len() int {
	return t.methods.Len()
}

// Invoker runs one handler for one event, wrapped by an interceptor chain.
// Failures never escape Invoke; they are recorded on the ConsumerResult.
type Invoker struct {
	chain    Chain
	resolver Resolver
}

// NewInvoker creates an invoker. resolver may be nil when every
// registration carries its own handler.
func NewInvoker(chain Chain, resolver Resolver) *Invoker {
	return &Invoker{chain: chain, resolver: resolver}
}

// Invoke calls the handler of reg exactly once with evt.
func (iv *Invoker) Invoke(ctx context.Context, reg Registration, evt Event) ConsumerResult {
	start := time.Now()
	inv := Invocation{Event: evt, Descriptor: reg.Descriptor}
	result := ConsumerResult{
		Owner:  reg.Owner,
		Method: reg.Method,
	}

	h, resolveErr := iv.resolve(ctx, reg)

	ctx = iv.chain.Before(ctx, inv)

	var ie *InvocationError
	if resolveErr != nil {
		ie = &InvocationError{Kind: FailureResolution, Descriptor: reg.Descriptor, Err: resolveErr}
	} else if err := call(ctx, h, evt); err != nil {
		ie = &InvocationError{Kind: FailureHandler, Descriptor: reg.Descriptor, Err: err}
	}

	result.Duration = time.Since(start)
	if ie != nil {
		iv.chain.OnError(ctx, inv, ie)
		result.Message = ie.Message()
		return result
	}

	iv.chain.After(ctx, inv)
	result.Success = true
	return result
}

func (iv *Invoker) resolve(ctx context.Context, reg Registration) (Handler, error) {
	if reg.Handler != nil {
		return reg.Handler, nil
	}
	if iv.resolver == nil {
		return nil, ErrNoResolver
	}
	h, err := iv.resolver.Resolve(ctx, reg.Descriptor)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNotResolvable
	}
	return h, nil
}

// call runs the handler, converting a panic into an error.
func call(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return h.Handle(ctx, evt)
}
