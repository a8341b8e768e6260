package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/cuongbtq/agenthire/internal/dispute"
	"github.com/cuongbtq/agenthire/internal/domain"
)

// ConfirmPayment verifies txRef and moves a pending job to paid.
func (m *Machine) ConfirmPayment(ctx context.Context, actor domain.Actor, jobID, txRef string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventPaymentConfirmed, Actor: actor, TxRef: txRef})
}

// Accept moves a paid job to in_progress.
func (m *Machine) Accept(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventAgentAccept, Actor: actor})
}

// Decline refunds a job the agent will not take.
func (m *Machine) Decline(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventAgentDecline, Actor: actor})
}

// Deliver stores the agent's output.
func (m *Machine) Deliver(ctx context.Context, actor domain.Actor, jobID string, output json.RawMessage) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventAgentDeliver, Actor: actor, Output: output})
}

// Approve completes a delivered job and credits the agent. rating is optional.
func (m *Machine) Approve(ctx context.Context, actor domain.Actor, jobID string, rating *int) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventPurchaserApprove, Actor: actor, Rating: rating})
}

// RequestRevision sends a delivered job back to the agent.
func (m *Machine) RequestRevision(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventPurchaserRevision, Actor: actor})
}

// Dispute opens a dispute on a job in progress or delivered.
func (m *Machine) Dispute(ctx context.Context, actor domain.Actor, jobID, reason string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventPurchaserDispute, Actor: actor, Reason: reason})
}

// ResolveDispute settles a disputed job with outcome.
func (m *Machine) ResolveDispute(ctx context.Context, actor domain.Actor, jobID string, outcome dispute.Outcome) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventDisputeResolved, Actor: actor, Outcome: outcome})
}

// Fail marks a job whose automated processing could not finish.
func (m *Machine) Fail(ctx context.Context, actor domain.Actor, jobID, message string) (*domain.Job, error) {
	return m.Apply(ctx, Command{JobID: jobID, Event: domain.EventProcessingFailed, Actor: actor, Error: message})
}
