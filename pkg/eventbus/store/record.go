package store

import (
	"encoding/json"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// Record is the persisted form of a DeliveryResult. The event is reduced to
// its metadata and JSON payload.
type Record struct {
	ID            string                    `json:"id"`
	EventID       string                    `json:"event_id"`
	EventType     string                    `json:"event_type"`
	EventSource   string                    `json:"event_source,omitempty"`
	CorrelationID string                    `json:"correlation_id,omitempty"`
	EventTime     time.Time                 `json:"event_time"`
	Payload       json.RawMessage           `json:"payload,omitempty"`
	Group         string                    `json:"group"`
	Status        eventbus.Status           `json:"status"`
	Items         []eventbus.ConsumerResult `json:"items"`
	DispatchedAt  time.Time                 `json:"dispatched_at"`
	CompletedAt   time.Time                 `json:"completed_at"`
}

// NewRecord converts a delivery result.
func NewRecord(r eventbus.DeliveryResult) Record {
	rec := Record{
		ID:           r.ID,
		EventType:    r.EventType,
		Group:        r.Group,
		Status:       r.Status,
		Items:        r.Items,
		DispatchedAt: r.DispatchedAt,
		CompletedAt:  r.CompletedAt,
	}
	if rec.Items == nil {
		rec.Items = []eventbus.ConsumerResult{}
	}
	if evt := r.Event; evt != nil {
		rec.EventID = evt.ID()
		rec.EventSource = evt.Source()
		rec.CorrelationID = evt.CorrelationID()
		rec.EventTime = evt.Timestamp()
		if b := evt.DataBytes(); json.Valid(b) {
			rec.Payload = b
		}
	}
	return rec
}

// NewRecords converts a batch.
func NewRecords(results []eventbus.DeliveryResult) []Record {
	recs := make([]Record, len(results))
	for i, r := range results {
		recs[i] = NewRecord(r)
	}
	return recs
}

// Event rebuilds an event carrying the record's metadata and raw payload.
func (r Record) Event() eventbus.Event {
	return eventbus.New(r.EventType, r.EventSource, r.Payload,
		eventbus.WithEventID(r.EventID),
		eventbus.WithCorrelationID(r.CorrelationID),
		eventbus.WithTimestamp(r.EventTime),
	)
}
