package eventbus

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest lists handlers by name. Handlers loaded from a manifest carry
// no callable; the dispatcher resolves them through its Resolver.
//
//	handlers:
//	  - source: billing
//	    owner: billing.Ledger
//	    method: OnOrderCreated
//	    event: OrderCreated
type Manifest struct {
	Handlers []ManifestEntry `yaml:"handlers"`
}

// ManifestEntry is one handler in a manifest.
type ManifestEntry struct {
	Source string `yaml:"source"`
	Owner  string `yaml:"owner"`
	Method string `yaml:"method"`
	Event  string `yaml:"event"`
}

// LoadManifest reads a YAML manifest file into a Catalog.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses a YAML manifest into a Catalog.
func ParseManifest(data []byte) (*Catalog, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	catalog := NewCatalog()
	for i, e := range m.Handlers {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("manifest handler %d: %w", i, err)
		}
		catalog.Add(e.Source, Registration{
			Descriptor: Descriptor{Owner: e.Owner, Method: e.Method, EventType: e.Event},
		})
	}
	return catalog, nil
}

func (e ManifestEntry) validate() error {
	switch {
	case e.Source == "":
		return errors.New("source is required")
	case e.Owner == "":
		return errors.New("owner is required")
	case e.Method == "":
		return errors.New("method is required")
	case e.Event == "":
		return errors.New("event is required")
	}
	return nil
}
