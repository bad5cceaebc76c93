package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/store"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event bus daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), settings)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON)")
	return cmd
}

// serve runs the daemon until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, settings config.Settings) error {
	lvl, err := settings.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	shutdownTracing, err := setupTracing(ctx, settings.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, metricsHandler, err := setupMetrics(settings.Metrics)
	if err != nil {
		return err
	}

	d, err := newDaemon(ctx, settings, logger, metrics)
	if err != nil {
		return err
	}
	d.admin.metrics = metricsHandler
	return d.run(ctx)
}

// daemon is a configured dispatcher with its stores and admin server.
type daemon struct {
	settings   config.Settings
	logger     *slog.Logger
	dispatcher *eventbus.Dispatcher
	stores     *store.Set
	builtins   *builtins
	admin      *admin
}

// newDaemon opens the stores and registers handlers. The caller owns the
// returned daemon and must call shutdown (run does so).
func newDaemon(ctx context.Context, settings config.Settings, logger *slog.Logger, metrics observability.MetricsRecorder) (*daemon, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	stores, err := store.OpenAll(ctx, settings.Stores)
	if err != nil {
		return nil, err
	}

	b := newBuiltins(logger)
	spans := observability.NewSpanManager()
	cfg := eventbus.Config{
		Group:              settings.Group,
		StaleAfter:         settings.StaleAfter,
		MaxConcurrency:     settings.MaxConcurrency,
		HandlerConcurrency: settings.HandlerConcurrency,
		FlushInterval:      settings.FlushInterval,
		QueueCapacity:      settings.QueueCapacity,
		Resolver:           b.methodTable(),
		Interceptors: []eventbus.Interceptor{
			eventbus.LoggingInterceptor(logger),
			eventbus.MetricsInterceptor(metrics),
			eventbus.TracingInterceptor(spans),
		},
		Logger:  logger,
		Metrics: metrics,
		Spans:   spans,
	}
	var (
		deliveries store.Querier
		handlers   store.DefinitionLister
	)
	if stores != nil {
		cfg.Store = stores
		deliveries = stores.Querier
		handlers = stores.Definitions
	}

	var catalog *eventbus.Catalog
	if settings.Manifest != "" {
		catalog, err = eventbus.LoadManifest(settings.Manifest)
		if err != nil {
			closeStores(stores, logger)
			return nil, err
		}
		cfg.Discoverer = catalog
	}

	dispatcher := eventbus.NewDispatcher(cfg)
	d := &daemon{
		settings:   settings,
		logger:     logger,
		dispatcher: dispatcher,
		stores:     stores,
		builtins:   b,
		admin: &admin{
			dispatcher: dispatcher,
			deliveries: deliveries,
			handlers:   handlers,
			counter:    b.counter,
			logger:     logger,
		},
	}

	if catalog == nil {
		dispatcher.Register(b.heartbeatRegistrations()...)
		if stores != nil {
			if err := stores.Initialize(ctx, dispatcher.Definitions()); err != nil {
				closeStores(stores, logger)
				return nil, fmt.Errorf("initialize store: %w", err)
			}
		}
		return d, nil
	}
	sources := settings.Sources
	if len(sources) == 0 {
		sources = catalog.Sources()
	}
	for _, src := range sources {
		if err := dispatcher.InitializeFromDiscovery(ctx, src); err != nil {
			closeStores(stores, logger)
			return nil, err
		}
	}
	return d, nil
}

// run starts the flush loop, heartbeat and admin server, and blocks until
// ctx is done or the admin server fails.
func (d *daemon) run(ctx context.Context) error {
	d.dispatcher.Start(context.WithoutCancel(ctx))

	srv := &http.Server{
		Addr:              d.settings.Admin.Addr,
		Handler:           d.admin.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		d.heartbeat(hbCtx)
	}()

	d.logger.Info("eventbus started",
		slog.String("group", d.settings.Group),
		slog.String("admin_addr", d.settings.Admin.Addr),
		slog.Any("topics", d.dispatcher.ListTopics()),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		runErr = fmt.Errorf("admin server: %w", err)
	}

	stopHeartbeat()
	<-hbDone
	if err := d.shutdown(srv); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// heartbeat publishes a Heartbeat event every settings.Heartbeat until ctx
// is done.
func (d *daemon) heartbeat(ctx context.Context) {
	if d.settings.Heartbeat <= 0 {
		return
	}
	host, _ := os.Hostname()

	ticker := time.NewTicker(d.settings.Heartbeat)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			if err := d.publishHeartbeat(ctx, host, seq); err != nil {
				if !errors.Is(err, context.Canceled) {
					d.logger.Warn("heartbeat not published", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func (d *daemon) publishHeartbeat(ctx context.Context, host string, seq uint64) error {
	return d.dispatcher.Enqueue(ctx, eventbus.Of(Heartbeat{Host: host, Seq: seq}))
}

// shutdown stops the admin server, drains the dispatcher with a final flush
// and closes the stores.
func (d *daemon) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	if err := d.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher close: %w", err))
	}
	if d.stores != nil {
		if err := d.stores.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	d.logger.Info("eventbus stopped")
	return errors.Join(errs...)
}

func closeStores(stores *store.Set, logger *slog.Logger) {
	if stores == nil {
		return
	}
	if err := stores.Close(); err != nil {
		logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}
