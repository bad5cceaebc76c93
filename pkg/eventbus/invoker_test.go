package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

func newRecorder(name string) *hookRecorder {
	mu, log := newHookLog()
	return &hookRecorder{name: name, mu: mu, log: log}
}

func TestInvoker_Success(t *testing.T) {
	rec := newRecorder("i")
	iv := eventbus.NewInvoker(eventbus.NewChain(rec), nil)

	res := iv.Invoke(context.Background(), ok("billing.Ledger", "OnOrderCreated", "OrderCreated"),
		eventbus.Of(OrderCreated{OrderID: "o-1"}))

	assert.True(t, res.Success)
	assert.Empty(t, res.Message)
	assert.Equal(t, "billing.Ledger", res.Owner)
	assert.Equal(t, "OnOrderCreated", res.Method)
	assert.Equal(t, []string{"i.before:OnOrderCreated", "i.after:OnOrderCreated"}, rec.entries())
}

func TestInvoker_HandlerFailure(t *testing.T) {
	rec := newRecorder("i")
	iv := eventbus.NewInvoker(eventbus.NewChain(rec), nil)

	res := iv.Invoke(context.Background(), failing("mail.Sender", "OnOrderCreated", "OrderCreated", "smtp down"),
		eventbus.Of(OrderCreated{}))

	assert.False(t, res.Success)
	assert.Equal(t, "smtp down", res.Message)
	assert.Equal(t, []string{"i.before:OnOrderCreated", "i.error:OnOrderCreated"}, rec.entries())

	require.Len(t, rec.errs, 1)
	var ie *eventbus.InvocationError
	require.ErrorAs(t, rec.errs[0], &ie)
	assert.Equal(t, eventbus.FailureHandler, ie.Kind)
	assert.Equal(t, "mail.Sender", ie.Descriptor.Owner)
	assert.EqualError(t, ie.Err, "smtp down")
}

func TestInvoker_MessageUnwrapsOneLevel(t *testing.T) {
	cause := errors.New("connection refused")
	reg := eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: "o", Method: "m", EventType: "OrderCreated"},
		Handler: eventbus.HandlerFunc(func(context.Context, eventbus.Event) error {
			return fmt.Errorf("book order: %w", cause)
		}),
	}
	rec := newRecorder("i")

	res := eventbus.NewInvoker(eventbus.NewChain(rec), nil).
		Invoke(context.Background(), reg, eventbus.Of(OrderCreated{}))

	assert.Equal(t, "book order: connection refused", res.Message)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], cause)
}

func TestInvoker_RecoversHandlerPanic(t *testing.T) {
	reg := eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: "o", Method: "m", EventType: "OrderCreated"},
		Handler: eventbus.HandlerFunc(func(context.Context, eventbus.Event) error {
			panic("boom")
		}),
	}
	rec := newRecorder("i")

	var res eventbus.ConsumerResult
	require.NotPanics(t, func() {
		res = eventbus.NewInvoker(eventbus.NewChain(rec), nil).
			Invoke(context.Background(), reg, eventbus.Of(OrderCreated{}))
	})

	assert.False(t, res.Success)
	assert.Equal(t, "handler panicked: boom", res.Message)
	assert.Equal(t, []string{"i.before:m", "i.error:m"}, rec.entries())

	var pe *eventbus.PanicError
	assert.ErrorAs(t, rec.errs[0], &pe)
}

func TestInvoker_ResolutionFailureWithoutResolver(t *testing.T) {
	rec := newRecorder("i")
	reg := eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated"},
	}

	res := eventbus.NewInvoker(eventbus.NewChain(rec), nil).
		Invoke(context.Background(), reg, eventbus.Of(OrderCreated{}))

	assert.False(t, res.Success)
	assert.Equal(t, "resolve billing.Ledger#OnOrderCreated: no handler bound and no resolver configured", res.Message)
	assert.Equal(t, []string{"i.before:OnOrderCreated", "i.error:OnOrderCreated"}, rec.entries())

	var ie *eventbus.InvocationError
	require.ErrorAs(t, rec.errs[0], &ie)
	assert.Equal(t, eventbus.FailureResolution, ie.Kind)
	assert.ErrorIs(t, ie, eventbus.ErrNoResolver)
}

func TestInvoker_ResolvesThroughMethodTable(t *testing.T) {
	table := eventbus.NewMethodTable()
	var got string
	require.True(t, table.Bind("billing.Ledger", "OnOrderCreated",
		eventbus.HandlerFunc(func(_ context.Context, evt eventbus.Event) error {
			got = evt.Data().(OrderCreated).OrderID
			return nil
		})))
	assert.False(t, table.Bind("billing.Ledger", "OnOrderCreated", ok("x", "y", "z").Handler))
	assert.Equal(t, 1, table.Len())

	iv := eventbus.NewInvoker(eventbus.NewChain(), table)
	reg := eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated"},
	}

	res := iv.Invoke(context.Background(), reg, eventbus.Of(OrderCreated{OrderID: "o-7"}))
	assert.True(t, res.Success)
	assert.Equal(t, "o-7", got)

	reg.Method = "OnRefund"
	res = iv.Invoke(context.Background(), reg, eventbus.Of(OrderCreated{}))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "handler not resolvable")
}

func TestInvoker_ResolverError(t *testing.T) {
	resolver := eventbus.ResolverFunc(func(context.Context, eventbus.Descriptor) (eventbus.Handler, error) {
		return nil, errors.New("container not ready")
	})
	reg := eventbus.Registration{
		Descriptor: eventbus.Descriptor{Owner: "o", Method: "m", EventType: "OrderCreated"},
	}

	res := eventbus.NewInvoker(eventbus.NewChain(), resolver).
		Invoke(context.Background(), reg, eventbus.Of(OrderCreated{}))

	assert.False(t, res.Success)
	assert.Equal(t, "resolve o#m: container not ready", res.Message)
}

func TestOn_TypedHandler(t *testing.T) {
	var got OrderCreated
	reg := eventbus.On("billing.Ledger", "OnOrderCreated", func(_ context.Context, o OrderCreated) error {
		got = o
		return nil
	})
	assert.Equal(t, "OrderCreated", reg.EventType)

	require.NoError(t, reg.Handler.Handle(context.Background(), eventbus.Of(OrderCreated{OrderID: "o-1"})))
	assert.Equal(t, "o-1", got.OrderID)

	require.NoError(t, reg.Handler.Handle(context.Background(), eventbus.Of(&OrderCreated{OrderID: "o-2"})))
	assert.Equal(t, "o-2", got.OrderID)

	err := reg.Handler.Handle(context.Background(), eventbus.Of(PaymentReceived{}))
	assert.ErrorIs(t, err, eventbus.ErrPayloadType)
}
