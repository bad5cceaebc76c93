package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsOTel       = "otel"
	MetricsNone       = "none"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverKafka    = "kafka"
)

var drivers = []string{DriverMemory, DriverSQLite, DriverPostgres, DriverRedis, DriverKafka}

// Settings is the typed configuration of an event bus process.
type Settings struct {
	Group              string
	StaleAfter         time.Duration
	FlushInterval      time.Duration
	QueueCapacity      int
	MaxConcurrency     int
	HandlerConcurrency int

	// Manifest is a handler manifest file; Sources are the discovery
	// scopes registered from it at startup.
	Manifest string
	Sources  []string

	// Heartbeat is how often the daemon publishes a Heartbeat event.
	// Zero disables it.
	Heartbeat time.Duration

	LogLevel string
	Metrics  string

	// Stores receive delivery results. Several stores are written in turn.
	Stores []StoreSettings

	Admin     AdminSettings
	Telemetry TelemetrySettings
}

// StoreSettings configures one result store.
type StoreSettings struct {
	Driver string

	// DSN is the sqlite path, the postgres URL or the redis URL.
	DSN string

	// Kafka
	Brokers          []string
	Topic            string
	DefinitionsTopic string

	// Redis
	KeyPrefix string
	MaxLen    int
}

// AdminSettings configures the admin HTTP server.
type AdminSettings struct {
	Addr string
}

// TelemetrySettings configures trace export. An empty endpoint disables it.
type TelemetrySettings struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
}

// DefaultSettings provides reasonable defaults.
var DefaultSettings = Settings{
	Group:         "default",
	StaleAfter:    24 * time.Hour,
	FlushInterval: 10 * time.Second,
	QueueCapacity: 1024,
	Heartbeat:     30 * time.Second,
	LogLevel:      "info",
	Metrics:       MetricsPrometheus,
	Admin:         AdminSettings{Addr: ":8080"},
	Telemetry:     TelemetrySettings{ServiceName: "eventbus", Insecure: true},
}

// Decode reads Settings from cfg, falling back to DefaultSettings.
// A single "store" map is accepted as shorthand for a one-element "stores"
// list.
func Decode(cfg Config) Settings {
	d := DefaultSettings
	s := Settings{
		Group:              cfg.String("group", d.Group),
		StaleAfter:         cfg.Duration("stale_after", d.StaleAfter),
		FlushInterval:      cfg.Duration("flush_interval", d.FlushInterval),
		QueueCapacity:      cfg.Int("queue_capacity", d.QueueCapacity),
		MaxConcurrency:     cfg.Int("max_concurrency", d.MaxConcurrency),
		HandlerConcurrency: cfg.Int("handler_concurrency", d.HandlerConcurrency),
		Manifest:           cfg.String("manifest", d.Manifest),
		Sources:            cfg.StringSlice("sources", d.Sources),
		Heartbeat:          cfg.Duration("heartbeat", d.Heartbeat),
		LogLevel:           cfg.String("log_level", d.LogLevel),
		Metrics:            cfg.String("metrics", d.Metrics),
		Admin: AdminSettings{
			Addr: cfg.String("admin.addr", d.Admin.Addr),
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: cfg.String("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint),
			ServiceName:  cfg.String("telemetry.service_name", d.Telemetry.ServiceName),
			Insecure:     cfg.Bool("telemetry.insecure", d.Telemetry.Insecure),
		},
	}

	stores := cfg.List("stores")
	if cfg.Has("store") {
		stores = append([]Config{cfg.Sub("store")}, stores...)
	}
	for _, sc := range stores {
		s.Stores = append(s.Stores, decodeStore(sc))
	}
	return s
}

func decodeStore(c Config) StoreSettings {
	return StoreSettings{
		Driver:           c.String("driver", ""),
		DSN:              c.String("dsn", ""),
		Brokers:          c.StringSlice("brokers", nil),
		Topic:            c.String("topic", "eventbus.deliveries"),
		DefinitionsTopic: c.String("definitions_topic", ""),
		KeyPrefix:        c.String("key_prefix", "eventbus"),
		MaxLen:           c.Int("max_len", 0),
	}
}

// Validate reports every invalid setting.
func (s Settings) Validate() error {
	var errs []error
	if s.StaleAfter <= 0 {
		errs = append(errs, errors.New("stale_after must be positive"))
	}
	if s.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush_interval must be positive"))
	}
	if s.QueueCapacity <= 0 {
		errs = append(errs, errors.New("queue_capacity must be positive"))
	}
	if s.MaxConcurrency < 0 || s.HandlerConcurrency < 0 {
		errs = append(errs, errors.New("concurrency limits must not be negative"))
	}
	if _, err := s.Level(); err != nil {
		errs = append(errs, err)
	}
	switch s.Metrics {
	case MetricsPrometheus, MetricsOTel, MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", s.Metrics))
	}
	for i, st := range s.Stores {
		if err := st.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("stores[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (s Settings) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Validate checks that the driver is known and has what it needs.
func (s StoreSettings) Validate() error {
	if !slices.Contains(drivers, s.Driver) {
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	switch s.Driver {
	case DriverSQLite, DriverPostgres, DriverRedis:
		if s.DSN == "" {
			return fmt.Errorf("%s store requires dsn", s.Driver)
		}
	case DriverKafka:
		if len(s.Brokers) == 0 {
			return errors.New("kafka store requires brokers")
		}
	}
	return nil
}
