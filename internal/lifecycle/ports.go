package lifecycle

import (
	"context"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Store is the job and agent persistence contract.
type Store interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	ListJobs(ctx context.Context, filter domain.JobFilter) (domain.JobPage, error)
	// UpdateJobStatus writes update only if the job is still in status
	// expected, applying update.Stats to the job's agent in the same step. A
	// mismatch returns *domain.StatusMismatchError and writes nothing.
	UpdateJobStatus(ctx context.Context, id string, expected domain.Status, update domain.JobUpdate) (*domain.Job, error)

	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	UpdateAgentStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Agent, error)
	SaveTrust(ctx context.Context, id string, tier string, score float64) error
}

// PaymentVerifier checks an on-chain payment.
type PaymentVerifier interface {
	Verify(ctx context.Context, txRef string, expected domain.Money, recipient string) (domain.PaymentVerification, error)
}

// Scheduler starts the background hand-off of a paid job. It must not block on
// the dispatch itself.
type Scheduler interface {
	Schedule(ctx context.Context, job *domain.Job, agent *domain.Agent) error
}
