package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/semtrip/api"
	"github.com/c360studio/semtrip/budget"
	"github.com/c360studio/semtrip/config"
	"github.com/c360studio/semtrip/events"
	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/guide"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/llm/providers"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/resilient"
	"github.com/c360studio/semtrip/resolve"
	"github.com/c360studio/semtrip/runs"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/weather"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry

	// Reference data
	seeds   *seed.Store
	watcher *seed.Watcher

	// Providers
	cache   resilient.Cache
	calls   *resilient.Client
	planner *pipeline.Orchestrator

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Runs
	store   storage.Store
	manager *runs.Manager

	httpServer *http.Server
	listener   net.Listener
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start initializes every component except the HTTP listener.
func (a *App) Start(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.startSeeds(ctx); err != nil {
		return fmt.Errorf("load seed data: %w", err)
	}
	if err := a.startPlanner(ctx); err != nil {
		return err
	}
	if a.cfg.NATS.Enabled() {
		if err := a.startNATS(); err != nil {
			return fmt.Errorf("start NATS: %w", err)
		}
	}
	if err := a.startStore(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	opts := []runs.Option{
		runs.WithLogger(a.logger),
		runs.WithMaxTripDays(a.cfg.Pipeline.MaxTripDays),
	}
	if a.natsConn != nil {
		opts = append(opts, runs.WithNotifier(events.NewPublisher(a.natsConn, a.logger)))
	}
	manager, err := runs.NewManager(a.planner, a.store, opts...)
	if err != nil {
		return fmt.Errorf("create run manager: %w", err)
	}
	a.manager = manager

	a.logger.Info("Components initialized",
		"store", a.cfg.Store.Backend,
		"cache", a.cfg.Cache.Backend,
		"nats", a.natsURL())
	return nil
}

func (a *App) startSeeds(ctx context.Context) error {
	seeds, err := seed.NewStore(a.cfg.Seed.Dir, a.logger)
	if err != nil {
		return err
	}
	a.seeds = seeds

	if a.cfg.Seed.Watch && a.cfg.Seed.Dir != "" {
		w, err := seed.NewWatcher(seeds, a.cfg.Seed.Debounce.Std())
		if err != nil {
			return fmt.Errorf("create seed watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			return fmt.Errorf("start seed watcher: %w", err)
		}
		a.watcher = w
	}
	return nil
}

func (a *App) startPlanner(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		cache, err := resilient.NewRedisCache(ctx, a.cfg.Cache.RedisURL, a.logger)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		a.cache = cache
	default:
		a.cache = resilient.NewMemoryCache()
	}

	a.calls = resilient.NewClient(
		resilient.WithCache(a.cache),
		resilient.WithRetryConfig(a.cfg.RetryConfig()),
		resilient.WithTTL(a.cfg.Resilience.CacheTTL.Std()),
		resilient.WithLogger(a.logger),
		resilient.WithMetrics(resilient.NewMetrics(a.registry)),
	)

	llmClient := llm.NewClient(a.cfg.LLM.Build(), a.calls,
		llm.WithLogger(a.logger),
		llm.WithProviders(providers.All()...))

	maps := geo.NewClient(a.calls, a.cfg.GeoConfig(), a.seeds, a.logger)
	if !maps.Configured() {
		a.logger.Warn("Map service key not set, locations use the city table", "env", config.EnvAMapKey)
	}
	wx := weather.NewClient(a.calls, a.cfg.WeatherConfig(), a.seeds, a.logger)
	if !wx.Configured() {
		a.logger.Warn("Weather service key not set, forecasts use fallback data", "env", config.EnvOpenWeatherKey)
	}

	rules := a.cfg.Budget.Rules
	if len(rules) == 0 {
		rules = budget.DefaultRules()
	}
	agg, err := budget.NewAggregator(rules)
	if err != nil {
		return fmt.Errorf("build budget rules: %w", err)
	}

	deps := pipeline.Deps{
		LLM:     llmClient,
		Weather: wx,
		Locator: resolve.New(maps, a.seeds, a.logger),
		Seeds:   a.seeds,
		Budget:  agg,
	}
	if a.cfg.Guide.Enabled {
		deps.Guides = guide.NewLoader(a.calls, nil, a.cfg.GuideConfig(), a.logger)
	}

	planner, err := pipeline.New(a.cfg.PipelineConfig(), deps,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(pipeline.NewMetrics(a.registry)))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	a.planner = planner
	return nil
}

func (a *App) startNATS() error {
	if a.cfg.NATS.Embedded {
		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  a.cfg.NATS.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return errors.New("embedded NATS server failed to start")
		}
		a.embeddedServer = ns
		a.logger.Info("Embedded NATS server started", "url", ns.ClientURL())
	}

	conn, err := events.Connect(a.natsURL(), a.logger)
	if err != nil {
		return err
	}
	a.natsConn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) natsURL() string {
	if a.embeddedServer != nil {
		return a.embeddedServer.ClientURL()
	}
	return a.cfg.NATS.URL
}

func (a *App) startStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStore(a.cfg.Store.Path)
		if err != nil {
			return err
		}
		a.store = store
	case "nats":
		if a.js == nil {
			return errors.New("nats store requires a NATS connection")
		}
		store, err := storage.NewJetStreamStore(ctx, a.js)
		if err != nil {
			return err
		}
		a.store = store
	default:
		a.store = storage.NewMemoryStore()
	}
	return nil
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.manager,
		api.WithLogger(a.logger),
		api.WithGatherer(a.registry)).Handler()
}

// Serve listens on the configured address until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	a.listener = ln
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(ln)
	}()
	a.logger.Info("HTTP API listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Addr returns the bound listen address once Serve has started.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Shutdown gracefully stops all components. Running plans get until ctx
// ends to finish.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("run manager shutdown: %w", err))
		}
	}
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
	if c, ok := a.cache.(io.Closer); ok {
		_ = c.Close()
	}

	a.logger.Info("Shutdown complete")
	return errors.Join(errs...)
}
