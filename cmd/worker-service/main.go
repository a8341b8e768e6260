package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/agenthire/internal/config"
	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/lifecycle"
	"github.com/cuongbtq/agenthire/internal/processor"
	"github.com/cuongbtq/agenthire/internal/storage"
	"github.com/cuongbtq/agenthire/internal/webhook"
	"github.com/cuongbtq/agenthire/internal/worker"
	"github.com/cuongbtq/agenthire/shared/logger"
	"github.com/cuongbtq/agenthire/shared/postgresql"
	"github.com/cuongbtq/agenthire/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, "agenthire-worker")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := uuid.NewString()
	lg := appLogger.Logger

	lg.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := initPostgreSQL(ctx, &cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()
	lg.Info("Database connection established")

	store := storage.NewPostgres(dbClient.GetDB(), lg)

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()
	lg.Info("RabbitMQ connection established")

	// Outcomes only move jobs forward, so the worker's machine needs no
	// verifier or scheduler.
	machine := lifecycle.NewMachine(lifecycle.Dependencies{
		Store:  store,
		Logger: lg,
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        lg,
		Queue:         rabbitClient,
		Store:         store,
		Runner:        newExecutor(cfg, lg),
		Sink:          machine,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	lg.Info("Worker service started successfully")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			// Start only returns on its own when the broker closed the channel.
			err = errors.New("worker stopped: delivery channel closed")
		}
		lg.Error("Worker error", slog.Any("error", err))
		return err
	case <-ctx.Done():
		lg.Info("Received signal, shutting down gracefully")
		workerInstance.Stop()

		select {
		case err := <-done:
			if err != nil {
				lg.Error("Worker stopped with error", slog.Any("error", err))
				return err
			}
			lg.Info("Worker stopped gracefully")
		case <-time.After(cfg.Worker.ShutdownTimeout):
			lg.Warn("Worker shutdown timeout exceeded, forcing exit",
				slog.Duration("timeout", cfg.Worker.ShutdownTimeout),
			)
		}
	}

	lg.Info("Worker service shutdown complete")
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

// newExecutor builds the dispatch executor used for every consumed message.
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
