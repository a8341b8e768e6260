package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Publisher sends a message body to the dispatch queue. *rabbitmq.Client
// implements it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// DefaultPublishTimeout bounds one enqueue including publish retries.
const DefaultPublishTimeout = 5 * time.Second

// RabbitScheduler queues dispatches for the worker service. Schedule runs on
// the payment confirmation request, so the enqueue is the only cost it adds
// there and it is bounded by the publish timeout.
type RabbitScheduler struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// RabbitOption customizes a RabbitScheduler.
type RabbitOption func(*RabbitScheduler)

// WithPublishTimeout replaces DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) RabbitOption {
	return func(s *RabbitScheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRabbitScheduler creates a queue-backed scheduler.
func NewRabbitScheduler(publisher Publisher, logger *slog.Logger, opts ...RabbitOption) *RabbitScheduler {
	s := &RabbitScheduler{
		publisher: publisher,
		timeout:   DefaultPublishTimeout,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule publishes a dispatch message for job.
func (s *RabbitScheduler) Schedule(ctx context.Context, job *domain.Job, agent *domain.Agent) error {
	body, err := json.Marshal(Message{
		JobID:       job.ID,
		AgentID:     agent.ID,
		ScheduledAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.publisher.PublishWithRetry(pubCtx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish dispatch for job %s: %w", job.ID, err)
	}

	s.logger.Info("Dispatch queued",
		slog.String("job_id", job.ID),
		slog.String("agent_id", agent.ID),
	)
	return nil
}
