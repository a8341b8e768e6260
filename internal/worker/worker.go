// Package worker consumes queued dispatch messages, runs the agent dispatch
// for each paid job and feeds the outcome back into the state machine.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultJobTimeout bounds one dispatch including every webhook retry.
const DefaultJobTimeout = 10 * time.Minute

// Queue is the message source. *rabbitmq.Client satisfies it.
type Queue interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// JobReader loads the job and agent named by a message.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Queue         Queue
	Store         JobReader
	Runner        dispatch.Runner
	Sink          dispatch.Sink
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// jobMessage is a parsed delivery handed to the pool.
type jobMessage struct {
	dispatch.Message
	delivery amqp.Delivery
}

// Worker represents the background dispatch worker
type Worker struct {
	logger        *slog.Logger
	queue         Queue
	store         JobReader
	runner        dispatch.Runner
	sink          dispatch.Sink
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration

	jobsChan chan *jobMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker"
	}

	return &Worker{
		logger:        cfg.Logger,
		queue:         cfg.Queue,
		store:         cfg.Store,
		runner:        cfg.Runner,
		sink:          cfg.Sink,
		workerID:      workerID,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobTimeout:    timeout,
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes messages until ctx is canceled, Stop is called or the
// delivery channel closes. It returns after in-flight jobs have finished.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}

// Stop asks a running worker to stop taking new messages.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
