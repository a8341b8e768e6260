package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// processJob runs the dispatch for one message. A nil return ACKs the
// message, including when the job has already moved past paid.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	job, err := w.store.GetJob(ctx, msg.JobID)
	if err != nil {
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: job %s does not exist", domain.ErrInvalidPayload, msg.JobID)
		}
		return domain.NewRetryableError(fmt.Errorf("load job: %w", err))
	}

	// Redelivered or duplicate message.
	if job.Status != domain.StatusPaid {
		w.logger.Warn("Skipping job that is no longer paid",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
		)
		return nil
	}

	agent, err := w.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: agent %s does not exist", domain.ErrInvalidPayload, job.AgentID)
		}
		return domain.NewRetryableError(fmt.Errorf("load agent: %w", err))
	}

	if !msg.ScheduledAt.IsZero() {
		w.logger.Debug("Dispatch queue latency",
			slog.String("job_id", job.ID),
			slog.Duration("waited", time.Since(msg.ScheduledAt)),
		)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	out := w.runner.Run(jobCtx, job, agent)

	if err := w.sink.ApplyOutcome(ctx, out); err != nil {
		// Someone else moved the job on while the dispatch ran.
		if domain.IsValidation(err) {
			w.logger.Warn("Dispatch outcome no longer applies",
				slog.String("job_id", job.ID),
				slog.String("outcome", string(out.Kind)),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("apply outcome: %w", err))
	}

	w.logger.Info("Dispatch finished",
		slog.String("job_id", job.ID),
		slog.String("outcome", string(out.Kind)),
	)
	return nil
}
