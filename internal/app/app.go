package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nicolaspannunzio/backend-I/internal/config"
	"github.com/nicolaspannunzio/backend-I/internal/event"
	handler "github.com/nicolaspannunzio/backend-I/internal/handler/http"
	"github.com/nicolaspannunzio/backend-I/internal/repository"
	"github.com/nicolaspannunzio/backend-I/internal/repository/jsonfile"
	redisrepo "github.com/nicolaspannunzio/backend-I/internal/repository/redis"
	"github.com/nicolaspannunzio/backend-I/internal/service"
	"github.com/nicolaspannunzio/backend-I/pkg/breaker"
	"github.com/nicolaspannunzio/backend-I/pkg/health"
	pkgkafka "github.com/nicolaspannunzio/backend-I/pkg/kafka"
	"github.com/nicolaspannunzio/backend-I/pkg/tracing"
)

const serviceName = "cart-service"

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// Redis and Kafka are optional: an unreachable Redis only degrades readiness.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tracing.
	tracingCfg := tracing.DefaultConfig(serviceName)
	tracingCfg.Enabled = cfg.OTelEnabled
	tracingCfg.Environment = cfg.Environment
	tracingCfg.OTLPEndpoint = cfg.OTelEndpoint
	tracingCfg.SampleRate = cfg.OTelSampleRate
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	healthHandler := health.NewHandler()

	// JSON file storage.
	fileRepo := jsonfile.NewCartRepository(cfg.DataDir, cfg.DataFile, logger)
	if err := fileRepo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("check data dir: %w", err)
	}
	healthHandler.RegisterCritical("storage", fileRepo.Ping)
	logger.Info("cart storage ready", slog.String("path", fileRepo.Path()))

	var repo repository.CartRepository = fileRepo

	// Redis cache.
	if cfg.CacheEnabled() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, cache will be bypassed until it recovers",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("connected to Redis",
				slog.String("addr", cfg.RedisAddr),
				slog.Int("db", cfg.RedisDB),
			)
		}

		cached := redisrepo.NewCachedCartRepository(fileRepo, a.rdb, cfg.CacheTTL(), logger)
		healthHandler.RegisterNonCritical("redis", cached.Ping)
		repo = cached
	}

	// Kafka events.
	var publisher event.Publisher = event.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		cb := breaker.New(breaker.DefaultConfig("kafka-producer"), logger)
		publisher = event.NewProducer(a.producer, cb, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	cartService := service.NewCartService(repo, publisher, logger)

	// HTTP router.
	router := handler.NewRouter(cartService, healthHandler, logger, cfg.RequestTimeout())

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.RequestTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
