package eventbus

import (
	"time"
)

// Status is the aggregated outcome of one dispatch.
type Status string

// Delivery statuses.
const (
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFail           Status = "FAIL"
	StatusTimeout        Status = "TIMEOUT"
)

// ConsumerResult is the outcome of one handler invocation.
type ConsumerResult struct {
	Owner    string        `json:"owner"`
	Method   string        `json:"method"`
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// DeliveryResult is the outcome of dispatching one event to all of its
// handlers. Items are in registration order.
type DeliveryResult struct {
	ID           string           `json:"id"`
	Event        Event            `json:"-"`
	EventType    string           `json:"event_type"`
	Group        string           `json:"group"`
	Status       Status           `json:"status"`
	Items        []ConsumerResult `json:"items"`
	DispatchedAt time.Time        `json:"dispatched_at"`
	CompletedAt  time.Time        `json:"completed_at"`
}

// Succeeded returns the number of successful items.
func (r DeliveryResult) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Success {
			n++
		}
	}
	return n
}

// HandlerDefinition describes a registered handler for a ResultStore that
// keeps a catalogue of known handlers.
type HandlerDefinition struct {
	Owner     string `json:"owner"`
	Method    string `json:"method"`
	EventType string `json:"event_type"`
	Group     string `json:"group"`
}

// Aggregate derives a delivery status from handler outcomes: SUCCESS when
// every handler succeeded, PARTIAL_SUCCESS when some did, FAIL when none did
// or when there were no handlers at all.
func Aggregate(items []ConsumerResult) Status {
	if len(items) == 0 {
		return StatusFail
	}
	ok := 0
	for _, it := range items {
		if it.Success {
			ok++
		}
	}
	switch ok {
	case len(items):
		return StatusSuccess
	case 0:
		return StatusFail
	default:
		return StatusPartialSuccess
	}
}
