// Package dispute settles disputed jobs with one of three fixed outcomes.
package dispute

import (
	"fmt"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Outcome is an administrative decision on a disputed job.
type Outcome string

const (
	// OutcomeRefund returns the full price to the purchaser.
	OutcomeRefund Outcome = "refund"
	// OutcomePartial returns PartialPercent of the price to the purchaser.
	OutcomePartial Outcome = "partial"
	// OutcomeRelease pays the agent as if the purchaser had approved.
	OutcomeRelease Outcome = "release"
)

// DefaultPartialPercent is the share of the price refunded by OutcomePartial.
const DefaultPartialPercent = 50

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeRefund, OutcomePartial, OutcomeRelease:
		return o, nil
	default:
		return "", domain.BadRequestf("unknown dispute outcome %q", s)
	}
}

// Settlement is the effect of an outcome on a job and its agent.
type Settlement struct {
	Outcome      Outcome
	Status       domain.Status
	RefundAmount domain.Money
	Stats        domain.StatsDelta
}

// Resolver maps outcomes to settlements.
type Resolver struct {
	partialPercent int
}

// NewResolver returns a resolver refunding partialPercent of the price on a
// partial outcome. Values outside 0..100 fall back to DefaultPartialPercent.
func NewResolver(partialPercent int) *Resolver {
	if partialPercent <= 0 || partialPercent > 100 {
		partialPercent = DefaultPartialPercent
	}
	return &Resolver{partialPercent: partialPercent}
}

// PartialPercent reports the configured partial refund share.
func (r *Resolver) PartialPercent() int {
	return r.partialPercent
}

// Settle computes the settlement of outcome for job. The job must be disputed.
func (r *Resolver) Settle(job *domain.Job, outcome Outcome) (Settlement, error) {
	if job.Status != domain.StatusDisputed {
		return Settlement{}, domain.RejectTransition(domain.EventDisputeResolved, job.Status)
	}

	switch outcome {
	case OutcomeRefund:
		return Settlement{
			Outcome:      outcome,
			Status:       domain.StatusRefunded,
			RefundAmount: job.Price,
			Stats:        domain.StatsDelta{RefundedJobs: 1},
		}, nil
	case OutcomePartial:
		return Settlement{
			Outcome:      outcome,
			Status:       domain.StatusRefunded,
			RefundAmount: job.Price.Percent(r.partialPercent),
			Stats:        domain.StatsDelta{RefundedJobs: 1},
		}, nil
	case OutcomeRelease:
		return Settlement{
			Outcome:      outcome,
			Status:       domain.StatusCompleted,
			RefundAmount: 0,
			Stats:        domain.StatsDelta{CompletedJobs: 1, Earned: job.Price},
		}, nil
	default:
		return Settlement{}, fmt.Errorf("settle job %s: %w", job.ID, domain.BadRequestf("unknown dispute outcome %q", outcome))
	}
}
