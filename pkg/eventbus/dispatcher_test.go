package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

func newTestDispatcher(cfg eventbus.Config) *eventbus.Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return eventbus.NewDispatcher(cfg)
}

func TestDispatcher_OrderCreatedPartialSuccess(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{Group: "shop"})
	d.Register(
		eventbus.On("billing.Ledger", "OnOrderCreated", func(context.Context, OrderCreated) error {
			return nil
		}),
		eventbus.On("mail.Sender", "OnOrderCreated", func(context.Context, OrderCreated) error {
			return errors.New("smtp down")
		}),
	)

	res := d.Handle(context.Background(), eventbus.Of(OrderCreated{OrderID: "o-1"}))

	assert.Equal(t, eventbus.StatusPartialSuccess, res.Status)
	assert.Equal(t, "shop", res.Group)
	assert.Equal(t, "OrderCreated", res.EventType)
	assert.NotEmpty(t, res.ID)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 1, res.Succeeded())

	byOwner := map[string]eventbus.ConsumerResult{}
	for _, it := range res.Items {
		byOwner[it.Owner] = it
	}
	assert.True(t, byOwner["billing.Ledger"].Success)
	assert.False(t, byOwner["mail.Sender"].Success)
	assert.Equal(t, "smtp down", byOwner["mail.Sender"].Message)
}

func TestDispatcher_NoHandlersFails(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	d.Register(ok("o", "m", "OrderCreated"))

	res := d.Handle(context.Background(), eventbus.Of(PaymentReceived{}))

	assert.Equal(t, eventbus.StatusFail, res.Status)
	assert.Empty(t, res.Items)
}

func TestDispatcher_StaleEventTimesOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDispatcher(eventbus.Config{Clock: func() time.Time { return now }})

	var calls atomic.Int32
	d.Register(eventbus.On("spy.Handler", "OnOrderCreated", func(context.Context, OrderCreated) error {
		calls.Add(1)
		return nil
	}))

	stale := eventbus.Of(OrderCreated{}, eventbus.WithTimestamp(now.Add(-25*time.Hour)))
	res := d.Handle(context.Background(), stale)
	assert.Equal(t, eventbus.StatusTimeout, res.Status)
	assert.Empty(t, res.Items)
	assert.Equal(t, int32(0), calls.Load())

	// Exactly at the window is still fresh.
	edge := eventbus.Of(OrderCreated{}, eventbus.WithTimestamp(now.Add(-24*time.Hour)))
	assert.Equal(t, eventbus.StatusSuccess, d.Handle(context.Background(), edge).Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_ZeroTimestampIsStale(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	d.Register(ok("o", "m", "OrderCreated"))

	evt := eventbus.Of(OrderCreated{}, eventbus.WithTimestamp(time.Time{}))
	assert.Equal(t, eventbus.StatusTimeout, d.Handle(context.Background(), evt).Status)
}

func TestDispatcher_CustomStaleAfter(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{StaleAfter: time.Minute})
	d.Register(ok("o", "m", "OrderCreated"))

	evt := eventbus.Of(OrderCreated{}, eventbus.WithTimestamp(time.Now().Add(-2*time.Minute)))
	assert.Equal(t, eventbus.StatusTimeout, d.Handle(context.Background(), evt).Status)
}

func TestDispatcher_Aggregation(t *testing.T) {
	tests := []struct {
		name    string
		fail    int
		succeed int
		want    eventbus.Status
	}{
		{name: "all succeed", succeed: 3, want: eventbus.StatusSuccess},
		{name: "some succeed", succeed: 2, fail: 1, want: eventbus.StatusPartialSuccess},
		{name: "none succeed", fail: 3, want: eventbus.StatusFail},
		{name: "single failure", fail: 1, want: eventbus.StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(eventbus.Config{})
			for i := range tt.succeed {
				d.Register(ok("ok", string(rune('a'+i)), "OrderCreated"))
			}
			for i := range tt.fail {
				d.Register(failing("bad", string(rune('a'+i)), "OrderCreated", "x"))
			}

			res := d.Handle(context.Background(), eventbus.Of(OrderCreated{}))
			assert.Equal(t, tt.want, res.Status)
			assert.Len(t, res.Items, tt.succeed+tt.fail)
		})
	}
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, eventbus.StatusFail, eventbus.Aggregate(nil))
	assert.Equal(t, eventbus.StatusSuccess, eventbus.Aggregate([]eventbus.ConsumerResult{{Success: true}}))
	assert.Equal(t, eventbus.StatusPartialSuccess,
		eventbus.Aggregate([]eventbus.ConsumerResult{{Success: true}, {Success: false}}))
	assert.Equal(t, eventbus.StatusFail,
		eventbus.Aggregate([]eventbus.ConsumerResult{{Success: false}, {Success: false}}))
}

func TestDispatcher_ItemsKeepRegistrationOrder(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{HandlerConcurrency: 2})
	methods := []string{"a", "b", "c", "d", "e"}
	for _, m := range methods {
		d.Register(ok("o", m, "OrderCreated"))
	}

	res := d.Handle(context.Background(), eventbus.Of(OrderCreated{}))
	require.Len(t, res.Items, len(methods))
	for i, m := range methods {
		assert.Equal(t, m, res.Items[i].Method)
	}
}

func TestDispatcher_InterceptorHooksArePaired(t *testing.T) {
	rec := newRecorder("i")
	d := newTestDispatcher(eventbus.Config{Interceptors: []eventbus.Interceptor{rec}})
	d.Register(ok("o", "good", "OrderCreated"), failing("o", "bad", "OrderCreated", "x"))

	d.Handle(context.Background(), eventbus.Of(OrderCreated{}))

	entries := rec.entries()
	assert.Len(t, entries, 4)
	for _, m := range []string{"good", "bad"} {
		before := indexOf(entries, "i.before:"+m)
		after := indexOf(entries, "i.after:"+m)
		onErr := indexOf(entries, "i.error:"+m)
		require.GreaterOrEqual(t, before, 0)
		assert.True(t, (after >= 0) != (onErr >= 0), "exactly one closing hook for %s", m)
		assert.Greater(t, max(after, onErr), before)
	}
	assert.Contains(t, entries, "i.after:good")
	assert.Contains(t, entries, "i.error:bad")
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestDispatcher_InterceptorPanicIsContained(t *testing.T) {
	boom := eventbus.InterceptorFuncs{
		AfterFunc: func(_ context.Context, inv eventbus.Invocation) {
			if inv.Descriptor.Method == "a" {
				panic("observer broke")
			}
		},
	}
	d := newTestDispatcher(eventbus.Config{Interceptors: []eventbus.Interceptor{boom}})
	d.Register(ok("o", "a", "OrderCreated"), ok("o", "b", "OrderCreated"))

	var res eventbus.DeliveryResult
	require.NotPanics(t, func() {
		res = d.Handle(context.Background(), eventbus.Of(OrderCreated{}))
	})
	assert.Equal(t, eventbus.StatusPartialSuccess, res.Status)
	assert.Equal(t, "interceptor panicked: observer broke", res.Items[0].Message)
	assert.True(t, res.Items[1].Success)
}

func TestDispatcher_ResultsQueuedOnlyWithStore(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	d.Register(ok("o", "m", "OrderCreated"))
	d.Handle(context.Background(), eventbus.Of(OrderCreated{}))

	assert.Nil(t, d.Pipeline())
	n, err := d.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	store := &recordingStore{}
	d = newTestDispatcher(eventbus.Config{Store: store})
	d.Register(ok("o", "m", "OrderCreated"))
	d.Handle(context.Background(), eventbus.Of(OrderCreated{}))
	d.Handle(context.Background(), eventbus.Of(PaymentReceived{}))

	require.NotNil(t, d.Pipeline())
	assert.Equal(t, 2, d.Pipeline().Len())
	n, err = d.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	batches := store.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, eventbus.StatusSuccess, batches[0][0].Status)
	assert.Equal(t, eventbus.StatusFail, batches[0][1].Status)
}

func TestDispatcher_EnqueueRunsAsynchronously(t *testing.T) {
	store := &recordingStore{}
	d := newTestDispatcher(eventbus.Config{Store: store, FlushInterval: time.Hour})

	release := make(chan struct{})
	var handled atomic.Int32
	d.Register(eventbus.On("o", "m", func(context.Context, OrderCreated) error {
		<-release
		handled.Add(1)
		return nil
	}))

	ctx := context.Background()
	for range 3 {
		require.NoError(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})))
	}
	assert.Equal(t, int32(0), handled.Load())

	close(release)
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, int32(3), handled.Load())
	assert.Equal(t, 3, store.stored())
}

func TestDispatcher_EnqueueNilIsDropped(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	assert.NoError(t, d.Enqueue(context.Background(), nil))
	assert.Equal(t, eventbus.StatusFail, d.Handle(context.Background(), nil).Status)
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	err := d.Enqueue(context.Background(), eventbus.Of(OrderCreated{}))
	assert.ErrorIs(t, err, eventbus.ErrClosed)
}

func TestDispatcher_MaxConcurrency(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{MaxConcurrency: 1})

	release := make(chan struct{})
	d.Register(eventbus.On("o", "m", func(context.Context, OrderCreated) error {
		<-release
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})))

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(timeout, eventbus.Of(OrderCreated{}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_HandlersOutliveEnqueueContext(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	var sawErr error
	var wg sync.WaitGroup
	wg.Add(1)
	d.Register(eventbus.On("o", "m", func(ctx context.Context, _ OrderCreated) error {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		sawErr = ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})))
	cancel()
	wg.Wait()

	assert.NoError(t, sawErr)
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	release := make(chan struct{})
	defer close(release)
	d.Register(eventbus.On("o", "m", func(context.Context, OrderCreated) error {
		<-release
		return nil
	}))
	require.NoError(t, d.Enqueue(context.Background(), eventbus.Of(OrderCreated{})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestDispatcher_CloseResumesAfterTimeout(t *testing.T) {
	store := &recordingStore{}
	d := newTestDispatcher(eventbus.Config{Store: store, FlushInterval: time.Hour})
	d.Start(context.Background())

	release := make(chan struct{})
	d.Register(
		eventbus.On("slow.Handler", "OnPaymentReceived", func(context.Context, PaymentReceived) error {
			<-release
			return nil
		}),
		eventbus.On("fast.Handler", "OnOrderCreated", func(context.Context, OrderCreated) error {
			return nil
		}),
	)

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, eventbus.Of(PaymentReceived{})))
	require.NoError(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})))
	require.Eventually(t, func() bool { return d.Pipeline().Len() == 1 }, time.Second, 5*time.Millisecond)

	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(timeout), context.DeadlineExceeded)
	assert.ErrorIs(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})), eventbus.ErrClosed)
	assert.Equal(t, 0, store.stored())

	close(release)
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 2, store.stored())
	assert.Equal(t, 0, d.Pipeline().Len())
}

func TestDispatcher_CloseDrainsFullQueueWithoutStart(t *testing.T) {
	store := &recordingStore{}
	d := newTestDispatcher(eventbus.Config{
		Store:         store,
		QueueCapacity: 1,
		FlushInterval: 10 * time.Millisecond,
	})
	d.Register(ok("o", "m", "OrderCreated"))

	ctx := context.Background()
	for range 3 {
		require.NoError(t, d.Enqueue(ctx, eventbus.Of(OrderCreated{})))
	}

	timeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(timeout))
	assert.Equal(t, 3, store.stored())
}

func TestDispatcher_ListTopics(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{})
	assert.Equal(t, []string{"none-topic"}, d.ListTopics())

	added := d.Register(eventbus.On("payments.Audit", "OnPayment", func(context.Context, PaymentReceived) error {
		return nil
	}))
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"PaymentReceived"}, d.ListTopics())
}

func TestDispatcher_Definitions(t *testing.T) {
	d := newTestDispatcher(eventbus.Config{Group: "shop"})
	assert.Empty(t, d.Definitions())

	d.Register(
		ok("mail.Sender", "OnPaymentReceived", "PaymentReceived"),
		ok("billing.Ledger", "OnOrderCreated", "OrderCreated"),
	)

	assert.Equal(t, []eventbus.HandlerDefinition{
		{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated", Group: "shop"},
		{Owner: "mail.Sender", Method: "OnPaymentReceived", EventType: "PaymentReceived", Group: "shop"},
	}, d.Definitions())
}

func TestDispatcher_MetricsRecorded(t *testing.T) {
	m := &fakeMetrics{}
	d := newTestDispatcher(eventbus.Config{Metrics: m})
	d.Register(ok("o", "m", "OrderCreated"))

	d.Handle(context.Background(), eventbus.Of(OrderCreated{}))
	d.Handle(context.Background(), eventbus.Of(PaymentReceived{}))

	assert.Equal(t, []string{"SUCCESS", "FAIL"}, m.deliveries)
}
