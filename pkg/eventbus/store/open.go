package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
)

// Store is a ResultStore that holds resources.
type Store interface {
	eventbus.ResultStore
	io.Closer
}

// Open builds the store described by s.
func Open(ctx context.Context, s config.StoreSettings) (Store, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(s.DSN)
	case config.DriverPostgres:
		return OpenPostgres(ctx, s.DSN)
	case config.DriverRedis:
		return OpenRedis(ctx, s.DSN, RedisConfig{KeyPrefix: s.KeyPrefix, MaxLen: int64(s.MaxLen)})
	case config.DriverKafka:
		return NewKafkaStore(NewKafkaWriter(s.Brokers), KafkaConfig{
			Topic:            s.Topic,
			DefinitionsTopic: s.DefinitionsTopic,
		}), nil
	}
	return nil, fmt.Errorf("unknown driver %q", s.Driver)
}

// Set is the stores of a process: a ResultStore writing to all of them,
// the first one that can list deliveries and the first one that can list
// handler definitions.
type Set struct {
	eventbus.ResultStore
	Querier     Querier
	Definitions DefinitionLister
	stores      []Store
}

// OpenAll opens every configured store. It returns a nil Set when none is
// configured. On error, stores opened so far are closed.
func OpenAll(ctx context.Context, settings []config.StoreSettings) (*Set, error) {
	if len(settings) == 0 {
		return nil, nil
	}

	set := &Set{}
	sinks := make([]eventbus.ResultStore, 0, len(settings))
	for i, s := range settings {
		st, err := Open(ctx, s)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("open store %d (%s): %w", i, s.Driver, err)
		}
		set.stores = append(set.stores, st)
		sinks = append(sinks, st)
		if q, ok := st.(Querier); ok && set.Querier == nil {
			set.Querier = q
		}
		if l, ok := st.(DefinitionLister); ok && set.Definitions == nil {
			set.Definitions = l
		}
	}
	set.ResultStore = Tee(sinks...)
	return set, nil
}

// Close closes every store.
func (s *Set) Close() error {
	var errs []error
	for _, st := range s.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
