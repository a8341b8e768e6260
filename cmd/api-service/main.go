package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/agenthire/internal/api/handler"
	"github.com/cuongbtq/agenthire/internal/api/router"
	"github.com/cuongbtq/agenthire/internal/auth"
	"github.com/cuongbtq/agenthire/internal/config"
	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/dispute"
	"github.com/cuongbtq/agenthire/internal/lifecycle"
	"github.com/cuongbtq/agenthire/internal/payment"
	"github.com/cuongbtq/agenthire/internal/processor"
	"github.com/cuongbtq/agenthire/internal/storage"
	"github.com/cuongbtq/agenthire/internal/webhook"
	"github.com/cuongbtq/agenthire/shared/logger"
	"github.com/cuongbtq/agenthire/shared/postgresql"
	"github.com/cuongbtq/agenthire/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, "agenthire-api")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	lg := appLogger.Logger

	lg.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("dispatch_mode", cfg.Dispatch.Mode),
		slog.String("storage", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]func(context.Context) error)

	store, closeStore, err := initStore(ctx, &cfg.Database, lg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	nonces, redisClient, err := initNonceStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	challenges := auth.NewChallengeService(
		nonces,
		auth.NewHTTPSignatureVerifier(cfg.Auth.SignatureVerifierURL, 0),
		tokens,
		cfg.Auth.ChallengeTTL,
		cfg.Auth.AdminWallets,
		lg,
	)

	executor := newExecutor(cfg, lg)

	var (
		scheduler    lifecycle.Scheduler
		background   *dispatch.Background
		rabbitClient *rabbitmq.Client
	)
	switch cfg.Dispatch.Mode {
	case config.DispatchRabbitMQ:
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, lg)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		checks["rabbitmq"] = func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		}
		scheduler = dispatch.NewRabbitScheduler(rabbitClient, lg,
			dispatch.WithPublishTimeout(cfg.RabbitMQ.Publish.Timeout))
		lg.Info("RabbitMQ connection established")
	default:
		background = dispatch.NewBackground(executor, cfg.Dispatch.BufferSize, lg)
		scheduler = background
	}

	machine := lifecycle.NewMachine(lifecycle.Dependencies{
		Store:            store,
		Verifier:         payment.NewHTTPVerifier(cfg.Payment.VerifierURL, cfg.Payment.Timeout, lg),
		Scheduler:        scheduler,
		Resolver:         dispute.NewResolver(cfg.Disputes.PartialRefundPercent),
		Logger:           lg,
		DefaultRecipient: cfg.Payment.DefaultRecipient,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.SetupRouter(&handler.Dependencies{
		Logger:       lg,
		Machine:      machine,
		Auth:         challenges,
		Tokens:       tokens,
		HealthChecks: checks,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if background != nil {
		// Drains in-flight dispatches after cancellation.
		g.Go(func() error {
			return background.Run(gctx, machine)
		})
	}

	if memNonces, ok := nonces.(*auth.MemoryNonceStore); ok {
		g.Go(func() error {
			auth.RunJanitor(gctx, memNonces, cfg.Auth.NonceCleanupInterval, lg)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		lg.Error("API service stopped with error", slog.Any("error", err))
		return err
	}

	lg.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		Service:    service,
		TimeFormat: time.RFC3339,
	})
}

// initStore opens the configured job store and registers its health check.
func initStore(ctx context.Context, cfg *config.DatabaseConfig, lg *slog.Logger, checks map[string]func(context.Context) error) (lifecycle.Store, func(), error) {
	if cfg.Driver == config.StorageMemory {
		lg.Warn("Using in-memory storage; state is lost on restart")
		return storage.NewMemory(), func() {}, nil
	}

	dbClient, err := initPostgreSQL(ctx, cfg, lg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	checks["postgres"] = dbClient.HealthCheck

	store := storage.NewPostgres(dbClient.GetDB(), lg)
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			dbClient.Close()
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		lg.Info("Database schema ensured")
	}

	return store, func() { dbClient.Close() }, nil
}

// initNonceStore returns the challenge nonce store. The Redis client is
// returned so the caller can close it.
func initNonceStore(ctx context.Context, cfg *config.Config, checks map[string]func(context.Context) error) (auth.NonceStore, *redis.Client, error) {
	if cfg.Auth.NonceStore != config.NonceStoreRedis {
		return auth.NewMemoryNonceStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return auth.NewRedisNonceStore(client, cfg.Redis.Prefix), client, nil
}

// newExecutor builds the dispatch executor shared by both dispatch modes.
func newExecutor(cfg *config.Config, lg *slog.Logger) *dispatch.Executor {
	var proc dispatch.TaskProcessor
	if cfg.Processor.URL != "" {
		proc = processor.NewHTTPProcessor(cfg.Processor.URL, lg)
	}

	return dispatch.NewExecutor(
		webhook.NewDispatcher(lg, webhook.WithUserAgent(cfg.Webhook.UserAgent)),
		proc,
		dispatch.ExecutorOptions{
			Webhook: webhook.Options{
				MaxAttempts:       cfg.Webhook.MaxAttempts,
				PerAttemptTimeout: cfg.Webhook.PerAttemptTimeout,
				DelaySchedule:     cfg.Webhook.DelaySchedule,
			},
			ProcessTimeout: cfg.Processor.Timeout,
		},
		lg,
	)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
