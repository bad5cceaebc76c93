package store

import (
	"context"
	"errors"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// Tee returns a ResultStore that forwards every call to all stores in
// order. A failing store does not stop the others; their errors are joined.
func Tee(stores ...eventbus.ResultStore) eventbus.ResultStore {
	if len(stores) == 1 {
		return stores[0]
	}
	return tee(stores)
}

type tee []eventbus.ResultStore

func (t tee) Initialize(ctx context.Context, defs []eventbus.HandlerDefinition) error {
	var errs []error
	for _, s := range t {
		if err := s.Initialize(ctx, defs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Store(ctx context.Context, results []eventbus.DeliveryResult) error {
	var errs []error
	for _, s := range t {
		if err := s.Store(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
