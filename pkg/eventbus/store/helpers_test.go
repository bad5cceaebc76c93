package store_test

import (
	"fmt"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

type OrderCreated struct {
	OrderID string `json:"order_id"`
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sampleResults builds n results dispatched one second apart.
func sampleResults(n int) []eventbus.DeliveryResult {
	out := make([]eventbus.DeliveryResult, n)
	for i := range out {
		evt := eventbus.Of(OrderCreated{OrderID: fmt.Sprintf("o-%d", i)},
			eventbus.WithEventID(fmt.Sprintf("evt-%d", i)),
			eventbus.WithTimestamp(baseTime),
		)
		dispatched := baseTime.Add(time.Duration(i) * time.Second)
		out[i] = eventbus.DeliveryResult{
			ID:        fmt.Sprintf("d-%d", i),
			Event:     evt,
			EventType: evt.Type(),
			Group:     "shop",
			Status:    eventbus.StatusPartialSuccess,
			Items: []eventbus.ConsumerResult{
				{Owner: "billing.Ledger", Method: "OnOrderCreated", Success: true, Duration: time.Millisecond},
				{Owner: "mail.Sender", Method: "OnOrderCreated", Message: "smtp down", Duration: 2 * time.Millisecond},
			},
			DispatchedAt: dispatched,
			CompletedAt:  dispatched.Add(5 * time.Millisecond),
		}
	}
	return out
}

var sampleDefs = []eventbus.HandlerDefinition{
	{Owner: "billing.Ledger", Method: "OnOrderCreated", EventType: "OrderCreated", Group: "shop"},
	{Owner: "mail.Sender", Method: "OnOrderCreated", EventType: "OrderCreated", Group: "shop"},
}
