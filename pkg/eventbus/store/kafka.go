package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaStore.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaStore.
type KafkaConfig struct {
	// Topic receives one message per delivery, keyed by event type.
	Topic string

	// DefinitionsTopic receives handler definitions. Empty disables
	// Initialize.
	DefinitionsTopic string
}

// KafkaStore publishes delivery records for consumers outside the process.
type KafkaStore struct {
	w   MessageWriter
	cfg KafkaConfig
}

// NewKafkaWriter returns a writer for brokers. Topics are set per message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaStore publishes through w. Close closes w.
func NewKafkaStore(w MessageWriter, cfg KafkaConfig) *KafkaStore {
	if cfg.Topic == "" {
		cfg.Topic = "eventbus.deliveries"
	}
	return &KafkaStore{w: w, cfg: cfg}
}

// Initialize implements eventbus.ResultStore.
func (s *KafkaStore) Initialize(ctx context.Context, defs []eventbus.HandlerDefinition) error {
	if s.cfg.DefinitionsTopic == "" {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(defs))
	for _, d := range defs {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode handler definition: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: s.cfg.DefinitionsTopic,
			Key:   []byte(d.Owner + "#" + d.Method),
			Value: b,
		})
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish handler definitions: %w", err)
	}
	return nil
}

// Store implements eventbus.ResultStore. Each message carries the event
// type and status as headers, plus the trace context of ctx.
func (s *KafkaStore) Store(ctx context.Context, results []eventbus.DeliveryResult) error {
	msgs := make([]kafka.Message, 0, len(results))
	for _, rec := range NewRecords(results) {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode delivery %s: %w", rec.ID, err)
		}
		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "status", Value: []byte(rec.Status)},
		}
		msgs = append(msgs, kafka.Message{
			Topic:   s.cfg.Topic,
			Key:     []byte(rec.EventType),
			Value:   b,
			Headers: injectTraceHeaders(ctx, headers),
		})
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish deliveries: %w", err)
	}
	return nil
}

// Close closes the writer.
func (s *KafkaStore) Close() error {
	return s.w.Close()
}

// injectTraceHeaders appends W3C trace context headers.
func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
