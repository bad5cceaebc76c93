package eventbus

import (
	"context"
	"slices"
	"strings"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// Discoverer produces the registrations found under a discovery scope.
// How handlers are found is up to the implementation.
type Discoverer interface {
	Discover(ctx context.Context, source string) ([]Registration, error)
}

// DiscovererFunc is a function that implements Discoverer.
type DiscovererFunc func(ctx context.Context, source string) ([]Registration, error)

// Discover calls f(ctx, source).
func (f DiscovererFunc) Discover(ctx context.Context, source string) ([]Registration, error) {
	return f(ctx, source)
}

// Catalog is a static Discoverer. Registrations are added under a dotted
// source name; discovering "billing" yields the registrations of "billing"
// and of every nested source such as "billing.invoices".
type Catalog struct {
	sources  *registry.Multi[string, Descriptor]
	handlers *registry.Registry[Descriptor, Handler]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		sources:  registry.NewMulti[string, Descriptor](),
		handlers: registry.New[Descriptor, Handler](),
	}
}

// Add records regs under source. Duplicate descriptors are ignored.
func (c *Catalog) Add(source string, regs ...Registration) {
	for _, reg := range regs {
		if reg.Handler != nil {
			c.handlers.Register(reg.Descriptor, reg.Handler)
		}
		c.sources.Add(source, reg.Descriptor)
	}
}

// Sources returns the source names in sorted order.
func (c *Catalog) Sources() []string {
	keys := c.sources.Keys()
	slices.Sort(keys)
	return keys
}

// Discover returns the registrations under source and its nested sources,
// ordered by source name then insertion.
func (c *Catalog) Discover(_ context.Context, source string) ([]Registration, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	var regs []Registration
	for _, key := range c.Sources() {
		if key != source && !strings.HasPrefix(key, source+".") {
			continue
		}
		for _, d := range c.sources.Get(key) {
			h, _ := c.handlers.Get(d)
			regs = append(regs, Registration{Descriptor: d, Handler: h})
		}
	}
	return regs, nil
}
