package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/metrics"
	"github.com/cuongbtq/agenthire/internal/webhook"
)

const (
	// DefaultProcessTimeout bounds one task processor call.
	DefaultProcessTimeout = 120 * time.Second

	processingTimeoutMessage = "Task processing timed out"
	processingFailedMessage  = "Task processing failed"
	noHandlerMessage         = "No webhook or task processor available"
)

// TaskProcessor runs a job synchronously for agents without a webhook.
type TaskProcessor interface {
	Process(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// Deliverer posts a webhook payload. *webhook.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload any, opts webhook.Options) webhook.Result
}

// Runner executes one dispatch.
type Runner interface {
	Run(ctx context.Context, job *domain.Job, agent *domain.Agent) Outcome
}

// ExecutorOptions tunes an Executor.
type ExecutorOptions struct {
	Webhook        webhook.Options
	ProcessTimeout time.Duration
}

// Executor hands a paid job to its agent: through the webhook when one is
// configured, otherwise through the task processor.
type Executor struct {
	deliverer Deliverer
	processor TaskProcessor
	opts      ExecutorOptions
	logger    *slog.Logger
}

// NewExecutor creates an executor. processor may be nil when every agent is
// expected to have a webhook.
func NewExecutor(deliverer Deliverer, processor TaskProcessor, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultProcessTimeout
	}
	return &Executor{
		deliverer: deliverer,
		processor: processor,
		opts:      opts,
		logger:    logger,
	}
}

// Run performs the dispatch and always returns an outcome for job.
func (e *Executor) Run(ctx context.Context, job *domain.Job, agent *domain.Agent) Outcome {
	var out Outcome
	if agent.WebhookURL != nil && *agent.WebhookURL != "" {
		out = e.runWebhook(ctx, job, *agent.WebhookURL)
	} else {
		out = e.runProcessor(ctx, job)
	}
	out.JobID = job.ID
	out.From = job.Status

	metrics.DispatchOutcomesTotal.WithLabelValues(string(out.Kind)).Inc()
	e.logger.Info("Dispatch finished",
		slog.String("job_id", job.ID),
		slog.String("agent_id", agent.ID),
		slog.String("outcome", string(out.Kind)),
	)
	return out
}

func (e *Executor) runWebhook(ctx context.Context, job *domain.Job, url string) Outcome {
	res := e.deliverer.Deliver(ctx, url, webhook.NewPayload(job), e.opts.Webhook)
	if res.Success {
		return Outcome{Kind: OutcomeAcknowledged}
	}
	return Outcome{
		Kind:    OutcomeFailed,
		Message: domain.WebhookFailureMessage,
		Err:     res.Err,
	}
}

func (e *Executor) runProcessor(ctx context.Context, job *domain.Job) Outcome {
	if e.processor == nil {
		return Outcome{
			Kind:    OutcomeFailed,
			Message: noHandlerMessage,
			Err:     domain.NewError(domain.KindInternal, "job %s has no webhook and no task processor", job.ID),
		}
	}

	procCtx, cancel := context.WithTimeout(ctx, e.opts.ProcessTimeout)
	defer cancel()

	output, err := e.processor.Process(procCtx, job)
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeDelivered, Output: output}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(procCtx.Err(), context.DeadlineExceeded):
		e.logger.Warn("Task processor timed out",
			slog.String("job_id", job.ID),
			slog.Duration("timeout", e.opts.ProcessTimeout),
		)
		return Outcome{
			Kind:    OutcomeFailed,
			Message: processingTimeoutMessage,
			Err:     domain.Wrap(err, domain.KindProcessingTimeout, processingTimeoutMessage),
		}
	default:
		e.logger.Warn("Task processor failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return Outcome{
			Kind:    OutcomeFailed,
			Message: processingFailedMessage,
			Err:     domain.Wrap(err, domain.KindInternal, processingFailedMessage),
		}
	}
}
