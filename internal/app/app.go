package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamoortahir09/atlas-store/internal/atlas"
	"github.com/tamoortahir09/atlas-store/internal/cart"
	cartredis "github.com/tamoortahir09/atlas-store/internal/cart/redis"
	"github.com/tamoortahir09/atlas-store/internal/catalog"
	"github.com/tamoortahir09/atlas-store/internal/config"
	"github.com/tamoortahir09/atlas-store/internal/event"
	handler "github.com/tamoortahir09/atlas-store/internal/handler/http"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	"github.com/tamoortahir09/atlas-store/internal/profile"
	"github.com/tamoortahir09/atlas-store/internal/stepper"
	stepperredis "github.com/tamoortahir09/atlas-store/internal/stepper/redis"
	"github.com/tamoortahir09/atlas-store/internal/upsell"
	"github.com/tamoortahir09/atlas-store/pkg/database"
	"github.com/tamoortahir09/atlas-store/pkg/health"
	"github.com/tamoortahir09/atlas-store/pkg/httpclient"
	pkgkafka "github.com/tamoortahir09/atlas-store/pkg/kafka"
	"github.com/tamoortahir09/atlas-store/pkg/tracing"
)

// App wires together all dependencies and runs the store service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	stepper    *stepper.Manager
	httpServer *http.Server

	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "atlas-store",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("db", cfg.RedisDB),
	)

	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Outbound clients share one pooled transport; each downstream gets its
	// own breaker so a PayNow outage does not trip Atlas calls.
	httpClient := httpclient.New(httpclient.DefaultConfig())
	paynowBreaker := httpclient.NewCircuitBreakerClient(httpClient, breakerConfig(cfg, "paynow"), logger)
	atlasBreaker := httpclient.NewCircuitBreakerClient(httpClient, breakerConfig(cfg, "atlas"), logger)

	paynowClient := paynow.NewClient(cfg.PayNowAPIURL, cfg.PayNowStoreID, paynowBreaker, logger)
	atlasClient := atlas.NewClient(cfg.AtlasAPIURL, atlasBreaker, logger)

	// Local catalog config, optionally overridden from a JSON file.
	localCatalog := catalog.DefaultLocalConfig()
	if cfg.CatalogConfigPath != "" {
		localCatalog, err = catalog.LoadLocalConfig(cfg.CatalogConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load catalog config: %w", err)
		}
	}

	// Build the dependency graph.
	eventProducer := event.NewProducer(producer, logger)
	catalogService := catalog.NewService(localCatalog, paynowClient, cfg.CatalogRefresh(), logger)
	cartRepo := cartredis.NewCartRepository(rdb, cfg.CartTTL())
	cartService := cart.NewService(cartRepo, eventProducer, logger, cfg.CartTTL())
	upsellService := upsell.NewService(cartService, catalogService, eventProducer, logger)
	profileService := profile.NewService(paynowClient, atlasClient, catalogService, logger, cfg.ProfileCacheTTL())

	sessionRepo := stepperredis.NewSessionRepository(rdb, time.Duration(cfg.StepSessionMaxAgeHours)*time.Hour)
	stepperManager := stepper.NewManager(
		sessionRepo,
		paynowClient,
		paynow.NewVerifier(paynowClient),
		cartService,
		eventProducer,
		logger,
		stepperOptions(cfg),
	)

	// Health checks. Redis is critical: carts and sessions live there.
	// Kafka is best-effort eventing and only degrades readiness reporting.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(handler.RouterDeps{
		Catalog:        catalogService,
		Cart:           cartService,
		Upsell:         upsellService,
		Stepper:        stepperManager,
		Profile:        profileService,
		Health:         healthHandler,
		Logger:         logger,
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		stepper:        stepperManager,
		httpServer:     httpServer,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Active checkout sessions are
// persisted by their runners on every transition, so stopping them here
// loses nothing; they resume on the next start.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.stepper.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("stepper shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func breakerConfig(cfg *config.Config, name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
}

func stepperOptions(cfg *config.Config) stepper.Options {
	return stepper.Options{
		SettleDelay:       time.Duration(cfg.StepSettleDelayMs) * time.Millisecond,
		SessionTimeout:    time.Duration(cfg.StepSessionTimeoutSec) * time.Second,
		InactivityTimeout: time.Duration(cfg.StepInactivityTimeoutSec) * time.Second,
		CloseDelay:        time.Duration(cfg.StepCloseDelayMs) * time.Millisecond,
		VerifyAttempts:    cfg.StepVerifyAttempts,
		VerifyDelay:       time.Duration(cfg.StepVerifyDelayMs) * time.Millisecond,
		MaxRetries:        cfg.StepMaxRetries,
		SessionMaxAge:     time.Duration(cfg.StepSessionMaxAgeHours) * time.Hour,
		Currency:          cfg.CheckoutCurrency,
	}
}
