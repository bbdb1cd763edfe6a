package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/kode4food/cadence"
	"github.com/kode4food/cadence/internal/catalog"
	"github.com/kode4food/cadence/internal/catalog/script"
	"github.com/kode4food/cadence/internal/conductor"
	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/internal/registration"
	"github.com/kode4food/cadence/internal/router"
	"github.com/kode4food/cadence/internal/server"
	"github.com/kode4food/cadence/internal/topics"
	"github.com/kode4food/cadence/pkg/log"
	"github.com/kode4food/cadence/pkg/util/call"
)

type cadence struct {
	cfg         *config.Config
	provider    topics.Provider
	topics      *topics.Registry
	bucket      *catalog.BucketSource
	source      catalog.Source
	resolver    catalog.ChainResolver
	mounts      *mounts.Registry
	router      *router.Router
	conductor   *conductor.Conductor
	coordinator *registration.Coordinator
	apiServer   *server.Server
	httpServer  *http.Server
	ctx         context.Context
	cancel      context.CancelFunc
	quit        chan os.Signal
}

//go:embed defaults/topics.json
var embeddedTopics embed.FS

//go:embed defaults/catalogs
var embeddedCatalogs embed.FS

var (
	ErrLoadConfigFile  = errors.New("failed to load config file")
	ErrOpenBucket      = errors.New("failed to open catalog bucket")
	ErrEmbeddedCatalog = errors.New("embedded catalog unavailable")
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &cadence{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfigFile, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *cadence) run() error {
	if err := call.Perform(
		s.initializeTopics,
		s.initializeCatalog,
		s.initializeRouter,
	); err != nil {
		s.closeResources()
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.startServer()
	go s.register()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *cadence) setupLogging() {
	level, _ := log.ParseLevel(s.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Cadence starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("topics_url", s.cfg.Topics.URL),
		slog.String("topics_path", s.cfg.Topics.Path),
		slog.String("topics_redis_addr", s.cfg.Topics.Redis.Addr),
		slog.String("catalog_url", s.cfg.Catalog.BaseURL),
		slog.String("catalog_bucket", s.cfg.Catalog.BucketURL),
		slog.Int("catalog_concurrency", s.cfg.Catalog.Concurrency),
		slog.Bool("validate_payloads", s.cfg.Router.ValidatePayloads),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *cadence) initializeTopics() error {
	embedded, err := fs.Sub(embeddedTopics, "defaults")
	if err != nil {
		return err
	}
	s.provider = topics.NewProvider(s.cfg.Topics, embedded)
	s.topics = topics.NewRegistry(s.provider)
	return nil
}

func (s *cadence) initializeCatalog() error {
	var chain catalog.ChainSource
	if s.cfg.Catalog.BaseURL != "" {
		chain = append(chain, &catalog.HTTPSource{
			BaseURL: s.cfg.Catalog.BaseURL,
		})
	}
	if s.cfg.Catalog.BucketURL != "" {
		bucket, err := catalog.OpenBucketSource(
			context.Background(), s.cfg.Catalog.BucketURL, "",
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenBucket, err)
		}
		s.bucket = bucket
		chain = append(chain, bucket)
	}
	embedded, err := fs.Sub(embeddedCatalogs, "defaults/catalogs")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbeddedCatalog, err)
	}
	chain = append(chain, &catalog.FSSource{FS: embedded})
	s.source = chain

	static := catalog.NewStaticResolver()
	static.RegisterModule(hostModuleRef, hostPlugin().Module())
	vendor := catalog.NewVendorResolver()
	vendor.Register(hostPackage, loadHostPackage)
	s.resolver = catalog.ChainResolver{
		static,
		vendor,
		script.NewResolver(s.source, catalog.ErrNotFound),
	}
	s.mounts = mounts.NewRegistry()
	return nil
}

func (s *cadence) initializeRouter() error {
	s.conductor = conductor.New()
	s.router = router.New(s.topics, s.cfg.Router, router.Dependencies{})
	s.router.SetDefaultExecutor(s.conductor)
	s.router.Start()

	loader := catalog.NewLoader(s.source, s.resolver, s.mounts, s.cfg.Catalog)
	s.coordinator = registration.NewCoordinator(
		registration.Shared(app.Name), loader, s.resolver,
		s.cfg.Registration,
	)
	return nil
}

func (s *cadence) register() {
	ctx := s.ctx
	if err := s.coordinator.RegisterAll(ctx, s.conductor); err != nil {
		slog.Error("Registration failed", log.Error(err))
		return
	}
	stats := s.topics.Stats(ctx)
	slog.Info("Ready",
		slog.String("topics_source", stats.Source),
		slog.Int("topics", stats.TopicCount),
		slog.Int("sequences", s.mounts.Len()))
}

func (s *cadence) startServer() {
	s.apiServer = server.NewServer(server.Dependencies{
		Router:  s.router,
		Topics:  s.topics,
		Mounts:  s.mounts,
		Ready:   s.coordinator,
		Service: app.Name,
	})
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *cadence) shutdown() {
	slog.Info("Shutting down")
	s.cancel()

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}
	s.apiServer.CloseWebSockets()

	if err := s.router.Stop(ctx); err != nil {
		slog.Error("Router shutdown failed", log.Error(err))
	}
	s.conductor.Flush()
	s.closeResources()

	slog.Info("Server exited")
}

func (s *cadence) closeResources() {
	var calls []call.Call
	if c, ok := s.provider.(interface{ Close() error }); ok {
		calls = append(calls, c.Close)
	}
	if s.bucket != nil {
		calls = append(calls, s.bucket.Close)
	}
	if err := call.PerformAll(calls...); err != nil {
		slog.Error("Resource close failed", log.Error(err))
	}
}
