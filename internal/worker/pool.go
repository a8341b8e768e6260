package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/metrics"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
}

// workerLoop processes messages until jobsChan is closed. A job already
// started runs to completion even if ctx is canceled.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for msg := range w.jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
		)

		err := w.processJob(context.WithoutCancel(ctx), msg)
		w.settle(workerName, msg, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// settle ACKs or NACKs the delivery based on the processing result.
func (w *Worker) settle(workerName string, msg *jobMessage, err error) {
	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
		metrics.WorkerMessagesTotal.WithLabelValues("ack").Inc()
		return
	}

	requeue := shouldRequeueJob(err)
	w.logger.Error("Job processing failed",
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.JobID),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)

	if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.String("error", nackErr.Error()),
		)
	}
	if requeue {
		metrics.WorkerMessagesTotal.WithLabelValues("requeue").Inc()
	} else {
		metrics.WorkerMessagesTotal.WithLabelValues("drop").Inc()
	}
}

// shouldRequeueJob reports whether a failed message is worth another attempt.
// Only errors marked retryable are requeued.
func shouldRequeueJob(err error) bool {
	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
