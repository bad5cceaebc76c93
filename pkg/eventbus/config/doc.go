/*
Package config loads event bus configuration from YAML or JSON.

# Overview

Config wraps a map[string]any and provides typed accessors that return a
default when a key is missing or has the wrong type. Keys may be dotted
paths into nested maps:

	cfg, err := config.FromFile("eventbus.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	addr := cfg.String("admin.addr", ":8080")

Settings is the typed view used by the eventbus command:

	settings, err := config.Load("eventbus.yaml")

# Example file

	group: shop
	stale_after: 24h
	flush_interval: 10s
	queue_capacity: 1024
	max_concurrency: 64
	manifest: handlers.yaml
	sources: [billing, shipping]
	log_level: info
	metrics: prometheus
	stores:
	  - driver: sqlite
	    dsn: eventbus.db
	  - driver: kafka
	    brokers: [localhost:9092]
	    topic: eventbus.deliveries
	admin:
	  addr: ":8080"
	telemetry:
	  otlp_endpoint: localhost:4317

# Type Coercion

Duration accepts strings parsed with time.ParseDuration, or numbers
interpreted as seconds. Int accepts floats without a fractional part, so
JSON numbers work.
*/
package config
