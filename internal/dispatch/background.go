package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// DefaultBufferSize is the capacity of the outcome channel.
const DefaultBufferSize = 64

// ErrSchedulerClosed is returned by Schedule once Run has stopped applying
// outcomes.
var ErrSchedulerClosed = errors.New("dispatch scheduler is shut down")

// Sink receives dispatch outcomes. The state machine implements it.
type Sink interface {
	ApplyOutcome(ctx context.Context, out Outcome) error
}

// Background runs dispatches in detached goroutines inside the API process and
// funnels their outcomes through one channel.
type Background struct {
	runner   Runner
	outcomes chan Outcome
	inflight sync.WaitGroup
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewBackground creates an in-process scheduler.
func NewBackground(runner Runner, bufferSize int, logger *slog.Logger) *Background {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Background{
		runner:   runner,
		outcomes: make(chan Outcome, bufferSize),
		logger:   logger,
	}
}

// Schedule starts a dispatch for job and returns immediately. The dispatch is
// not canceled with ctx; it runs until the runner finishes.
func (b *Background) Schedule(ctx context.Context, job *domain.Job, agent *domain.Agent) error {
	detached := context.WithoutCancel(ctx)
	jobCopy := *job
	agentCopy := *agent

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrSchedulerClosed
	}
	b.inflight.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.inflight.Done()
		b.outcomes <- b.runner.Run(detached, &jobCopy, &agentCopy)
	}()

	b.logger.Debug("Dispatch scheduled",
		slog.String("job_id", job.ID),
		slog.String("agent_id", agent.ID),
	)
	return nil
}

// Run applies outcomes to sink until ctx is canceled, then waits for in-flight
// dispatches and applies what they produce before returning.
func (b *Background) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case out := <-b.outcomes:
			b.apply(ctx, sink, out)
		case <-ctx.Done():
			b.mu.Lock()
			b.closed = true
			b.mu.Unlock()

			b.drain(context.WithoutCancel(ctx), sink)
			return nil
		}
	}
}

func (b *Background) drain(ctx context.Context, sink Sink) {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	for {
		select {
		case out := <-b.outcomes:
			b.apply(ctx, sink, out)
		case <-done:
			for {
				select {
				case out := <-b.outcomes:
					b.apply(ctx, sink, out)
				default:
					return
				}
			}
		}
	}
}

func (b *Background) apply(ctx context.Context, sink Sink, out Outcome) {
	if err := sink.ApplyOutcome(ctx, out); err != nil {
		b.logger.Error("Failed to apply dispatch outcome",
			slog.String("job_id", out.JobID),
			slog.String("outcome", string(out.Kind)),
			slog.Any("error", err),
		)
	}
}

// Wait blocks until every scheduled dispatch has posted its outcome.
func (b *Background) Wait() {
	b.inflight.Wait()
}
