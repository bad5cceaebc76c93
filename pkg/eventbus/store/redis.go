package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// KeyPrefix namespaces the keys. Default: "eventbus"
	KeyPrefix string

	// MaxLen caps the delivery list; older records are trimmed.
	// Default: 0 (unbounded)
	MaxLen int64
}

// RedisStore keeps delivery records as JSON in a Redis list and handler
// definitions in a hash:
//
//	<prefix>:deliveries  list, oldest first
//	<prefix>:handlers    hash, "Owner#Method@EventType/Group" -> JSON
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
}

// OpenRedis connects to a redis:// URL.
func OpenRedis(ctx context.Context, url string, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(rdb, cfg), nil
}

// NewRedisStore uses an existing client. Close closes the client.
func NewRedisStore(rdb *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "eventbus"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, maxLen: cfg.MaxLen}
}

func (s *RedisStore) deliveriesKey() string { return s.prefix + ":deliveries" }
func (s *RedisStore) handlersKey() string   { return s.prefix + ":handlers" }

// Initialize implements eventbus.ResultStore.
func (s *RedisStore) Initialize(ctx context.Context, defs []eventbus.HandlerDefinition) error {
	fields := make([]any, 0, 2*len(defs))
	for _, d := range defs {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode handler definition: %w", err)
		}
		field := fmt.Sprintf("%s#%s@%s/%s", d.Owner, d.Method, d.EventType, d.Group)
		fields = append(fields, field, string(b))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, s.handlersKey(), fields...).Err(); err != nil {
		return fmt.Errorf("store handler definitions: %w", err)
	}
	return nil
}

// Store implements eventbus.ResultStore. The batch is appended atomically.
func (s *RedisStore) Store(ctx context.Context, results []eventbus.DeliveryResult) error {
	values := make([]any, 0, len(results))
	for _, rec := range NewRecords(results) {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode delivery %s: %w", rec.ID, err)
		}
		values = append(values, string(b))
	}
	if len(values) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.deliveriesKey(), values...)
		if s.maxLen > 0 {
			pipe.LTrim(ctx, s.deliveriesKey(), -s.maxLen, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store deliveries: %w", err)
	}
	return nil
}

// Deliveries implements Querier.
func (s *RedisStore) Deliveries(ctx context.Context, limit int) ([]Record, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.rdb.LRange(ctx, s.deliveriesKey(), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	recs := make([]Record, 0, len(raw))
	for _, v := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode delivery: %w", err)
		}
		recs = append(recs, rec)
	}
	slices.Reverse(recs)
	return recs, nil
}

// Definitions implements DefinitionLister. Order is not guaranteed.
func (s *RedisStore) Definitions(ctx context.Context) ([]eventbus.HandlerDefinition, error) {
	raw, err := s.rdb.HGetAll(ctx, s.handlersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list handler definitions: %w", err)
	}
	defs := make([]eventbus.HandlerDefinition, 0, len(raw))
	for _, v := range raw {
		var d eventbus.HandlerDefinition
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			return nil, fmt.Errorf("decode handler definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
