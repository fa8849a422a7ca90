package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/forgo/qola/api/internal/audit"
	"github.com/forgo/qola/api/internal/config"
	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/handler"
	"github.com/forgo/qola/api/internal/identity"
	"github.com/forgo/qola/api/internal/jobs"
	"github.com/forgo/qola/api/internal/metrics"
	"github.com/forgo/qola/api/internal/middleware"
	"github.com/forgo/qola/api/internal/repository"
	"github.com/forgo/qola/api/internal/service"
	"github.com/forgo/qola/api/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// identityStore is an identity.Store that can also be health checked.
type identityStore interface {
	identity.Store
	handler.Pinger
}

func main() {
	// Initialize structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("server exited")
}

func run(logger *slog.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tp, err := telemetry.New(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownWithTimeout("telemetry", tp.Shutdown)

	// Document store
	db := database.NewSurrealDB(database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Namespace:   cfg.Database.Namespace,
		Database:    cfg.Database.Database,
		MaxAttempts: cfg.Database.MaxAttempts,
	})
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connect document store: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate document store: %w", err)
	}

	slog.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
	)

	// Identity store
	identities, closeIdentities, err := openIdentityStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeIdentities()

	// Pending-compensation queue
	queue, redisClient, err := openCompensationQueue(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Audit events
	var publisher audit.Publisher = audit.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(audit.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return fmt.Errorf("init audit publisher: %w", err)
		}
		defer kafka.Close()
		publisher = kafka
		slog.Info("publishing audit events to kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)

	// Services
	registrationService := service.NewRegistrationService(service.RegistrationServiceConfig{
		Identity:            identities,
		Store:               db,
		Accounts:            accountRepo,
		Quota:               service.NewQuotaTracker(quotaRepo, cfg.Registration.QuotaCeiling),
		Compensations:       queue,
		Audit:               publisher,
		Metrics:             m,
		Tracer:              tp.Tracer(),
		Logger:              logger,
		StepTimeout:         cfg.Registration.StepTimeout,
		CompensationTimeout: cfg.Registration.CompensationTimeout,
		AuditTimeout:        cfg.Registration.AuditTimeout,
	})

	// Background jobs
	retrier := jobs.NewCompensationRetrier(jobs.CompensationRetrierConfig{
		Queue:       queue,
		Identity:    identities,
		Accounts:    accountRepo,
		Audit:       publisher,
		Metrics:     m,
		Logger:      logger,
		Interval:    cfg.Compensation.RetryInterval,
		MaxAttempts: cfg.Compensation.MaxAttempts,
		BatchSize:   cfg.Compensation.BatchSize,
	})
	retrier.Start()
	defer retrier.Stop()

	// HTTP middleware state
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		})
		defer rateLimiter.Stop()
	}
	idempotencyStore := middleware.NewIdempotencyStore(middleware.IdempotencyConfig{})
	defer idempotencyStore.Stop()

	checks := map[string]handler.Pinger{
		"document": db,
		"identity": identities,
	}
	if redisClient != nil {
		checks["redis"] = redisPinger{redisClient}
	}

	router := handler.NewRouter(handler.RouterConfig{
		Registration:      handler.NewRegistrationHandler(registrationService, cfg.Registration.QuotaCeiling),
		Health:            handler.NewHealthHandler(checks, logger),
		Metrics:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RateLimiter:       rateLimiter,
		Idempotency:       idempotencyStore,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustForwardedFor: cfg.Registration.TrustForwardedFor,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openIdentityStore selects Postgres when a DSN is configured and the
// in-memory store otherwise.
func openIdentityStore(ctx context.Context, cfg *config.Config) (identityStore, func(), error) {
	if cfg.Identity.DatabaseDSN == "" {
		slog.Warn("IDENTITY_DATABASE_DSN not set, using in-memory identity store")
		return identity.NewMemoryStore(cfg.Identity.BcryptCost), func() {}, nil
	}

	sqlDB, err := identity.OpenPostgres(ctx, cfg.Identity.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = sqlDB.Close() }

	if err := identity.Migrate(ctx, sqlDB); err != nil {
		closeDB()
		return nil, nil, err
	}
	return identity.NewPostgresStore(sqlDB, identity.PostgresConfig{
		BcryptCost: cfg.Identity.BcryptCost,
	}), closeDB, nil
}

// openCompensationQueue selects Redis when a URL is configured. The returned
// client is nil for the in-memory queue.
func openCompensationQueue(ctx context.Context, cfg *config.Config) (repository.CompensationQueue, *redis.Client, error) {
	if cfg.Redis.URL == "" {
		slog.Warn("REDIS_URL not set, pending compensations are kept in memory")
		return repository.NewMemoryCompensationQueue(), nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return repository.NewRedisCompensationQueue(client, cfg.Redis.KeyPrefix), client, nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func shutdownWithTimeout(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("shutdown failed", slog.String("component", name), slog.String("error", err.Error()))
	}
}
