package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/blessingk/neo4j/config"
	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/cache"
	"github.com/blessingk/neo4j/pkg/events"
	"github.com/blessingk/neo4j/pkg/graph"
	"github.com/blessingk/neo4j/pkg/kafka"
	"github.com/blessingk/neo4j/pkg/middleware"
	"github.com/blessingk/neo4j/pkg/resolver"
	"github.com/blessingk/neo4j/pkg/routes/health"
	identityroutes "github.com/blessingk/neo4j/pkg/routes/identity"
	"github.com/blessingk/neo4j/pkg/startup"
	"github.com/blessingk/neo4j/pkg/tracing"
	"github.com/blessingk/neo4j/pkg/tracing/exporters"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "identity-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, syncLogs, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer syncLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		provider, err := newTracerProvider(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to shut down tracer provider")
			}
		}()
	}

	checker := health.NewChecker(cfg.Version)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	store, err := newStore(cfg, logger, checker, boot)
	if err != nil {
		return err
	}

	policy, err := identity.ParseLinkPolicy(cfg.RelinkPolicy)
	if err != nil {
		return err
	}
	resolverCfg := resolver.DefaultConfig()
	resolverCfg.LinkPolicy = policy
	resolverCfg.ActivityLimit = cfg.ActivityLimit

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		resolverCfg.Events = events.NewEmitter(producer, logger)
		boot.AddDependency(&startup.Dependency{
			Name:   "kafka",
			OnStop: func(context.Context) error { return producer.Close() },
		})
	}

	if cfg.RedisEnabled {
		redisClient := cache.NewClient(cache.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		resolverCfg.Brands = cache.NewBrandCache(redisClient, cfg.BrandCacheTTL(), logger)
		// The brand cache degrades to store reads, so redis is optional for readiness.
		checker.AddCheck("redis", redisClient, false)
		boot.AddDependency(&startup.Dependency{
			Name:   "redis",
			OnStop: func(context.Context) error { return redisClient.Close() },
		})
	}

	r := resolver.NewResolver(store, resolverCfg, logger)
	e := newServer(cfg, logger, checker, r)

	bootDone := make(chan struct{})
	go func() {
		defer close(bootDone)
		if err := boot.Start(ctx); err != nil {
			// Liveness stays up; readiness keeps reporting not ready.
			logger.WithError(err).Error("Service dependencies failed to start")
			return
		}
		checker.SetReady(true)
		logger.Info("Service is ready")
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Infof("Starting %s", cfg.AppName)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shut down http server")
	}

	stop()
	select {
	case <-bootDone:
	case <-shutdownCtx.Done():
		return fmt.Errorf("startup did not finish before shutdown: %w", shutdownCtx.Err())
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop dependencies")
	}
	return nil
}

func newLogger(cfg config.Config) (ectologger.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zc.Level = level
	zc.InitialFields = map[string]any{"app": cfg.AppName}

	zapLogger, err := zc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

func newTracerProvider(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.TracingExporter {
	case "discard":
		exporter = &exporters.DiscardExporter{}
	default:
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingEndpoint,
			Protocol: cfg.TracingProtocol,
			Insecure: cfg.TracingInsecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = otlp
	}
	return tracing.NewProvider(cfg.AppName, exporter), nil
}

// newStore builds the configured identity store and registers its startup and
// health hooks.
func newStore(cfg config.Config, logger ectologger.Logger, checker *health.Checker, boot *startup.Startup) (identity.Store, error) {
	switch cfg.GraphStore {
	case "memory":
		store := identity.NewMemoryStore()
		checker.AddCheck("graph", store, true)
		boot.AddDependency(&startup.Dependency{Name: "graph", OnStart: store.Ping})
		logger.Warn("Using the in-memory identity store; data is lost on restart")
		return store, nil
	case "neo4j", "":
	default:
		return nil, fmt.Errorf("unknown GRAPH_STORE %q", cfg.GraphStore)
	}

	dialect, err := identity.ParseDialect(cfg.GraphDBDialect)
	if err != nil {
		return nil, err
	}

	client, err := graph.NewClient(graph.Config{
		URI:         cfg.GraphDBURI,
		Host:        cfg.GraphDBHost,
		Port:        cfg.GraphDBPort,
		Username:    cfg.GraphDBUser,
		Password:    cfg.GraphDBPassword,
		Database:    cfg.GraphDBDatabase,
		MaxPoolSize: cfg.GraphDBMaxPoolSize,
		Timeout:     cfg.GraphDBTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	store := identity.NewGraphStore(client, logger)
	checker.AddCheck("graph", store, true)
	boot.AddDependency(&startup.Dependency{
		Name: "graph",
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			if !cfg.GraphDBEnsureSchema {
				return nil
			}
			return store.EnsureSchema(ctx, dialect)
		},
		OnStop: store.Close,
	})
	return store, nil
}

func newServer(cfg config.Config, logger ectologger.Logger, checker *health.Checker, r *resolver.Resolver) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	identityroutes.NewHandler(r, logger).Register(e.Group("/identity"))
	return e
}
