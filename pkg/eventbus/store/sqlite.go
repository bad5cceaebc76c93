package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// SQLiteStore persists results to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS handler_definitions (
	owner      TEXT NOT NULL,
	method     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	group_name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (owner, method, event_type, group_name)
);
CREATE TABLE IF NOT EXISTS deliveries (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	event_source   TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	event_time     TEXT NOT NULL,
	payload        BLOB,
	group_name     TEXT NOT NULL,
	status         TEXT NOT NULL,
	dispatched_at  TEXT NOT NULL,
	completed_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_dispatched_at ON deliveries(dispatched_at);
CREATE TABLE IF NOT EXISTS consumer_results (
	delivery_id TEXT NOT NULL REFERENCES deliveries(id),
	position    INTEGER NOT NULL,
	owner       TEXT NOT NULL,
	method      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	message     TEXT NOT NULL,
	duration_ns INTEGER NOT NULL,
	PRIMARY KEY (delivery_id, position)
);
`

// NewSQLiteStore creates a SQLite result store.
// The path should be a file path (e.g., "./eventbus.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writes are serialised anyway, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Initialize implements eventbus.ResultStore.
func (s *SQLiteStore) Initialize(ctx context.Context, defs []eventbus.HandlerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for _, d := range defs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO handler_definitions (owner, method, event_type, group_name, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, d.Owner, d.Method, d.EventType, d.Group, now); err != nil {
			return fmt.Errorf("insert handler definition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Store implements eventbus.ResultStore. The batch is written in one
// transaction.
func (s *SQLiteStore) Store(ctx context.Context, results []eventbus.DeliveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range NewRecords(results) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries (id, event_id, event_type, event_source, correlation_id,
				event_time, payload, group_name, status, dispatched_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.EventID, rec.EventType, rec.EventSource, rec.CorrelationID,
			formatTime(rec.EventTime), []byte(rec.Payload), rec.Group, string(rec.Status),
			formatTime(rec.DispatchedAt), formatTime(rec.CompletedAt)); err != nil {
			return fmt.Errorf("insert delivery %s: %w", rec.ID, err)
		}

		for i, it := range rec.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO consumer_results (delivery_id, position, owner, method, success, message, duration_ns)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, i, it.Owner, it.Method, it.Success, it.Message, int64(it.Duration)); err != nil {
				return fmt.Errorf("insert consumer result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Deliveries implements Querier.
func (s *SQLiteStore) Deliveries(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, event_type, event_source, correlation_id, event_time,
			payload, group_name, status, dispatched_at, completed_at
		FROM deliveries
		ORDER BY dispatched_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	var recs []Record
	for rows.Next() {
		var (
			rec                              Record
			eventTime, dispatched, completed string
			payload                          []byte
			status                           string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.EventSource,
			&rec.CorrelationID, &eventTime, &payload, &rec.Group, &status,
			&dispatched, &completed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.Status = eventbus.Status(status)
		rec.EventTime = parseTime(eventTime)
		rec.DispatchedAt = parseTime(dispatched)
		rec.CompletedAt = parseTime(completed)
		if len(payload) > 0 {
			rec.Payload = json.RawMessage(payload)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	rows.Close()

	for i := range recs {
		items, err := s.items(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Items = items
	}
	return recs, nil
}

func (s *SQLiteStore) items(ctx context.Context, deliveryID string) ([]eventbus.ConsumerResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, method, success, message, duration_ns
		FROM consumer_results
		WHERE delivery_id = ?
		ORDER BY position
	`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list consumer results: %w", err)
	}
	defer rows.Close()

	items := []eventbus.ConsumerResult{}
	for rows.Next() {
		var it eventbus.ConsumerResult
		var nanos int64
		if err := rows.Scan(&it.Owner, &it.Method, &it.Success, &it.Message, &nanos); err != nil {
			return nil, fmt.Errorf("scan consumer result: %w", err)
		}
		it.Duration = time.Duration(nanos)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumer results: %w", err)
	}
	return items, nil
}

// Definitions implements DefinitionLister.
func (s *SQLiteStore) Definitions(ctx context.Context) ([]eventbus.HandlerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, method, event_type, group_name
		FROM handler_definitions
		ORDER BY event_type, owner, method
	`)
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

// Close implements io.Closer.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
