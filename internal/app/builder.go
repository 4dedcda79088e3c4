package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/manifest-sync/internal/api"
	"github.com/stacklok/manifest-sync/internal/config"
	"github.com/stacklok/manifest-sync/internal/credentials"
	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/reconcile"
	"github.com/stacklok/manifest-sync/internal/sink"
	"github.com/stacklok/manifest-sync/internal/status"
	"github.com/stacklok/manifest-sync/internal/store"
	pkgsync "github.com/stacklok/manifest-sync/internal/sync"
	"github.com/stacklok/manifest-sync/internal/sync/coordinator"
	"github.com/stacklok/manifest-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// manualPassMargin is added to the pass timeout to bound POST /v1/reconcile
	manualPassMargin = 15 * time.Second
)

// AppOption is a function that configures the app builder
type AppOption func(*appConfig) error

// appConfig collects the builder inputs. Component overrides are primarily for testing.
type appConfig struct {
	config *config.Config

	// Optional component overrides
	fetcher manifest.Fetcher
	store   store.Store
	sink    sink.Sink
	manager pkgsync.Manager

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...AppOption) (*appConfig, error) {
	cfg := &appConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

// NewManifestSyncApp builds the service: pass components, coordinator and HTTP server
func NewManifestSyncApp(ctx context.Context, opts ...AppOption) (*ManifestSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	passComponents, err := buildPassComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build pass components: %w", err)
	}

	// Ensure the store is released on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			closeStore(passComponents.Store)
		}
	}()

	syncCoordinator, err := buildCoordinator(cfg, passComponents)
	if err != nil {
		return nil, fmt.Errorf("failed to build coordinator: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, syncCoordinator, passComponents.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	var once sync.Once
	cancelFunc := func() {
		once.Do(func() {
			cancel()
			closeStore(passComponents.Store)
		})
	}

	return &ManifestSyncApp{
		config: cfg.config,
		components: &AppComponents{
			PassComponents:  passComponents,
			SyncCoordinator: syncCoordinator,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// NewPassComponents builds only what a single pass needs, for one-shot runs.
// The caller must close the returned store.
func NewPassComponents(ctx context.Context, opts ...AppOption) (*PassComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildPassComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) AppOption {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) AppOption {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) AppOption {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithFetcher injects the manifest fetcher
func WithFetcher(f manifest.Fetcher) AppOption {
	return func(cfg *appConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithStore injects the version store. It is still initialized by the builder.
func WithStore(s store.Store) AppOption {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithSink injects the publication sink
func WithSink(s sink.Sink) AppOption {
	return func(cfg *appConfig) error {
		cfg.sink = s
		return nil
	}
}

// WithSyncManager injects the pass manager
func WithSyncManager(m pkgsync.Manager) AppOption {
	return func(cfg *appConfig) error {
		cfg.manager = m
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for pass and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) AppOption {
	return func(cfg *appConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for HTTP, pass and store tracing
func WithTracerProvider(tp trace.TracerProvider) AppOption {
	return func(cfg *appConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) AppOption {
	return func(cfg *appConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildCredentialsResolver loads the configured credentials from their secret files
func buildCredentialsResolver(creds []config.CredentialConfig) (credentials.Resolver, error) {
	if len(creds) == 0 {
		return credentials.NoopResolver{}, nil
	}

	entries := make([]credentials.Entry, 0, len(creds))
	for _, c := range creds {
		secret, err := config.ReadSecretFile(c.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials for %s: %w", c.URLPrefix, err)
		}
		entries = append(entries, credentials.Entry{
			URLPrefix: c.URLPrefix,
			Credentials: credentials.Credentials{
				Type:     credentials.Type(c.Type),
				Username: c.Username,
				Secret:   secret,
			},
		})
	}
	return credentials.NewStaticResolver(entries...), nil
}

// buildPassComponents builds fetcher, store, sink and manager
func buildPassComponents(ctx context.Context, b *appConfig) (*PassComponents, error) {
	slog.Info("Initializing pass components")

	if b.fetcher == nil {
		resolver, err := buildCredentialsResolver(b.config.Credentials)
		if err != nil {
			return nil, err
		}
		b.fetcher, err = manifest.NewFetcher(&b.config.Manifest, resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to create manifest fetcher: %w", err)
		}
	}

	if b.sink == nil {
		var err error
		b.sink, err = sink.New(&b.config.Sink)
		if err != nil {
			return nil, fmt.Errorf("failed to create sink: %w", err)
		}
	}

	if b.store == nil {
		var err error
		var storeOpts []store.Option
		if b.tracerProvider != nil {
			storeOpts = append(storeOpts, store.WithTracer(b.tracerProvider.Tracer(store.TracerName)))
		}
		b.store, err = store.New(ctx, &b.config.Storage, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create version store: %w", err)
		}
	}
	if err := b.store.Initialize(ctx); err != nil {
		closeStore(b.store)
		return nil, fmt.Errorf("failed to initialize version store: %w", err)
	}

	if b.manager == nil {
		reconciler := reconcile.New(b.store, reconcile.LocationConfig{
			DefaultBranch:  b.config.Catalog.DefaultBranch,
			CatalogPath:    b.config.Catalog.DefaultCatalogInfoPath,
			SourceURL:      b.fetcher.SourceURL(),
			TargetTemplate: b.config.Catalog.TargetTemplate,
		})
		var managerOpts []pkgsync.ManagerOption
		if b.tracerProvider != nil {
			managerOpts = append(managerOpts, pkgsync.WithTracer(b.tracerProvider.Tracer(pkgsync.TracerName)))
		}
		b.manager = pkgsync.NewDefaultManager(b.fetcher, reconciler, b.sink, managerOpts...)
	}

	slog.Info("Pass components initialized",
		"manifest", b.fetcher.SourceURL(),
		"sink", b.sink.Name())

	return &PassComponents{
		Fetcher: b.fetcher,
		Store:   b.store,
		Sink:    b.sink,
		Manager: b.manager,
	}, nil
}

// buildCoordinator builds the status tracker and the coordinator
func buildCoordinator(b *appConfig, pc *PassComponents) (coordinator.Coordinator, error) {
	var persistence status.StatusPersistence
	if b.config.Sync.StatusFile != "" {
		persistence = status.NewFileStatusPersistence(b.config.Sync.StatusFile)
	}
	tracker := status.NewTracker(persistence)

	var coordOpts []coordinator.Option
	if b.meterProvider != nil {
		passMetrics, err := telemetry.NewPassMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create pass metrics: %w", err)
		}
		if passMetrics != nil {
			coordOpts = append(coordOpts,
				coordinator.WithPassMetrics(passMetrics),
				coordinator.WithTrackedRepositoryCounter(countRecords(pc.Store)))
			slog.Info("Pass metrics enabled")
		}
	}

	return coordinator.New(pc.Manager, tracker,
		b.config.Sync.Interval.Std(), b.config.Sync.Timeout.Std(), coordOpts...), nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *appConfig, coord coordinator.Coordinator, records store.Store) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// A manual pass answers only once it completes
	requestTimeout := max(b.requestTimeout, b.config.Sync.Timeout.Std()+manualPassMargin)
	writeTimeout := max(b.writeTimeout, requestTimeout+time.Second)

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.tracerProvider),
		}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}

	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}

	router := api.NewServer(coord, records,
		api.WithMiddlewares(b.middlewares...),
		api.WithReadinessCheck(func(ctx context.Context) error {
			_, err := records.List(ctx)
			return err
		}),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

func countRecords(s store.Store) coordinator.TrackedRepositoryCounter {
	return func(ctx context.Context) (int, error) {
		records, err := s.List(ctx)
		if err != nil {
			return 0, err
		}
		return len(records), nil
	}
}

func closeStore(s store.Store) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		slog.Error("Failed to close version store", "error", err)
	}
}
