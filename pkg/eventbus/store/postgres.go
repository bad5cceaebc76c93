package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS eventbus_handler_definitions (
	owner      TEXT NOT NULL,
	method     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	group_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, method, event_type, group_name)
);
CREATE TABLE IF NOT EXISTS eventbus_deliveries (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	event_source   TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	event_time     TIMESTAMPTZ NOT NULL,
	payload        JSONB,
	group_name     TEXT NOT NULL,
	status         TEXT NOT NULL,
	items          JSONB NOT NULL,
	dispatched_at  TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_eventbus_deliveries_dispatched_at
	ON eventbus_deliveries (dispatched_at DESC);
`

// PostgresStore persists results to PostgreSQL. Consumer results are kept
// as a JSONB array on the delivery row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and creates the tables.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore uses an existing pool and creates the tables. Close
// closes the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Initialize implements eventbus.ResultStore.
func (s *PostgresStore) Initialize(ctx context.Context, defs []eventbus.HandlerDefinition) error {
	batch := &pgx.Batch{}
	for _, d := range defs {
		batch.Queue(`
			INSERT INTO eventbus_handler_definitions (owner, method, event_type, group_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, d.Owner, d.Method, d.EventType, d.Group)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert handler definitions: %w", err)
	}
	return nil
}

// Store implements eventbus.ResultStore. The batch is written in one
// transaction.
func (s *PostgresStore) Store(ctx context.Context, results []eventbus.DeliveryResult) error {
	batch := &pgx.Batch{}
	for _, rec := range NewRecords(results) {
		items, err := json.Marshal(rec.Items)
		if err != nil {
			return fmt.Errorf("encode items: %w", err)
		}
		var payload []byte
		if len(rec.Payload) > 0 {
			payload = rec.Payload
		}
		batch.Queue(`
			INSERT INTO eventbus_deliveries (id, event_id, event_type, event_source, correlation_id,
				event_time, payload, group_name, status, items, dispatched_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING
		`, rec.ID, rec.EventID, rec.EventType, rec.EventSource, rec.CorrelationID,
			rec.EventTime, payload, rec.Group, string(rec.Status), items,
			rec.DispatchedAt, rec.CompletedAt)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert deliveries: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Deliveries implements Querier.
func (s *PostgresStore) Deliveries(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, event_id, event_type, event_source, correlation_id, event_time,
			payload, group_name, status, items, dispatched_at, completed_at
		FROM eventbus_deliveries
		ORDER BY dispatched_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
			items   []byte
			status  string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.EventSource,
			&rec.CorrelationID, &rec.EventTime, &payload, &rec.Group, &status, &items,
			&rec.DispatchedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.Status = eventbus.Status(status)
		if len(payload) > 0 {
			rec.Payload = json.RawMessage(payload)
		}
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return recs, nil
}

// Definitions implements DefinitionLister.
func (s *PostgresStore) Definitions(ctx context.Context) ([]eventbus.HandlerDefinition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner, method, event_type, group_name
		FROM eventbus_handler_definitions
		ORDER BY event_type, owner, method`)
	if err != nil {
		return nil, fmt.Errorf("list handler definitions: %w", err)
	}
	defer rows.Close()

	var defs []eventbus.HandlerDefinition
	for rows.Next() {
		var d eventbus.HandlerDefinition
		if err := rows.Scan(&d.Owner, &d.Method, &d.EventType, &d.Group); err != nil {
			return nil, fmt.Errorf("scan handler definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handler definitions: %w", err)
	}
	return defs, nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
