package eventbus_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

func TestNew(t *testing.T) {
	before := time.Now()
	evt := eventbus.New("order.created", "shop", OrderCreated{OrderID: "o-1"})

	_, err := uuid.Parse(evt.ID())
	require.NoError(t, err)
	assert.Equal(t, "order.created", evt.Type())
	assert.Equal(t, "shop", evt.Source())
	assert.Equal(t, evt.ID(), evt.CorrelationID())
	assert.False(t, evt.Timestamp().Before(before))
	assert.Equal(t, "o-1", evt.TypedData().OrderID)
	assert.JSONEq(t, `{"order_id":"o-1","total":0}`, string(evt.DataBytes()))
}

func TestNew_Options(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := eventbus.New("x", "y", 42,
		eventbus.WithEventID("evt-1"),
		eventbus.WithCorrelationID("corr-1"),
		eventbus.WithTimestamp(ts),
	)

	assert.Equal(t, "evt-1", evt.ID())
	assert.Equal(t, "corr-1", evt.CorrelationID())
	assert.Equal(t, ts, evt.Timestamp())
	assert.Equal(t, 42, evt.Data())
}

func TestOf_RoutesByTypeName(t *testing.T) {
	assert.Equal(t, "OrderCreated", eventbus.Of(OrderCreated{}).Type())
	assert.Equal(t, "OrderCreated", eventbus.Of(&OrderCreated{}).Type())
	assert.Equal(t, "PaymentReceived", eventbus.TypeName[PaymentReceived]())
	assert.Equal(t, "string", eventbus.TypeName[string]())
	assert.Equal(t, "[]int", eventbus.TypeName[[]int]())
}

func TestDescriptor_String(t *testing.T) {
	d := eventbus.Descriptor{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated"}
	assert.Equal(t, "billing.Ledger#OnOrderCreated", d.String())
	assert.Equal(t, d, eventbus.Descriptor{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated"})
}

func TestInvocationError(t *testing.T) {
	d := eventbus.Descriptor{Owner: "o", Method: "m"}
	handlerErr := &eventbus.InvocationError{Kind: eventbus.FailureHandler, Descriptor: d, Err: assert.AnError}
	assert.Equal(t, "invoke o#m: "+assert.AnError.Error(), handlerErr.Error())
	assert.Equal(t, assert.AnError.Error(), handlerErr.Message())
	assert.Equal(t, "handler", handlerErr.Kind.String())

	resolveErr := &eventbus.InvocationError{Kind: eventbus.FailureResolution, Descriptor: d, Err: eventbus.ErrNotResolvable}
	assert.Equal(t, "resolve o#m: handler not resolvable", resolveErr.Message())
	assert.Equal(t, "resolution", resolveErr.Kind.String())
	assert.ErrorIs(t, resolveErr, eventbus.ErrNotResolvable)
}
