package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agenthire/internal/dispatch"
	"github.com/cuongbtq/agenthire/internal/dispute"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/metrics"
	"github.com/cuongbtq/agenthire/internal/trust"
)

// Dependencies holds the collaborators of a Machine.
type Dependencies struct {
	Store      Store
	Verifier   PaymentVerifier
	Scheduler  Scheduler
	Resolver   *dispute.Resolver
	Calculator *trust.Calculator
	Logger     *slog.Logger

	// DefaultRecipient receives payments for agents without a payout address.
	DefaultRecipient string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine applies lifecycle events to jobs. It holds no per-job state; every
// transition is a compare-and-set against the store, so concurrent callers on
// the same job see at most one success.
type Machine struct {
	store            Store
	verifier         PaymentVerifier
	scheduler        Scheduler
	resolver         *dispute.Resolver
	calc             *trust.Calculator
	logger           *slog.Logger
	defaultRecipient string
	now              func() time.Time
}

// NewMachine creates a state machine.
func NewMachine(deps Dependencies) *Machine {
	m := &Machine{
		store:            deps.Store,
		verifier:         deps.Verifier,
		scheduler:        deps.Scheduler,
		resolver:         deps.Resolver,
		calc:             deps.Calculator,
		logger:           deps.Logger,
		defaultRecipient: deps.DefaultRecipient,
		now:              deps.Now,
	}
	if m.resolver == nil {
		m.resolver = dispute.NewResolver(dispute.DefaultPartialPercent)
	}
	if m.calc == nil {
		m.calc = trust.NewCalculator(nil)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Command is one event aimed at one job. Only the fields the event uses are
// read.
type Command struct {
	JobID string
	Event domain.Event
	Actor domain.Actor

	TxRef   string          // payment_confirmed
	Output  json.RawMessage // agent_deliver
	Rating  *int            // purchaser_approve
	Reason  string          // purchaser_dispute
	Outcome dispute.Outcome // dispute_resolved
	Error   string          // processing_failed

	// Expected, when set, rejects the command unless the job is still in
	// that status.
	Expected domain.Status
}

func (c Command) validate() error {
	if c.JobID == "" {
		return domain.BadRequestf("job id is required")
	}
	switch c.Event {
	case domain.EventPaymentConfirmed:
		if strings.TrimSpace(c.TxRef) == "" {
			return domain.BadRequestf("transaction reference is required")
		}
	case domain.EventAgentDeliver:
		if len(c.Output) == 0 {
			return domain.BadRequestf("output is required")
		}
		if !json.Valid(c.Output) {
			return domain.BadRequestf("output must be valid JSON")
		}
	case domain.EventPurchaserApprove:
		if c.Rating != nil && (*c.Rating < 1 || *c.Rating > 5) {
			return domain.BadRequestf("rating must be between 1 and 5")
		}
	case domain.EventPurchaserDispute:
		if strings.TrimSpace(c.Reason) == "" {
			return domain.BadRequestf("dispute reason is required")
		}
	case domain.EventDisputeResolved:
		if _, err := dispute.ParseOutcome(string(c.Outcome)); err != nil {
			return err
		}
	case domain.EventProcessingFailed:
		if strings.TrimSpace(c.Error) == "" {
			return domain.BadRequestf("error message is required")
		}
	case domain.EventAgentAccept, domain.EventAgentDecline, domain.EventPurchaserRevision:
	default:
		return domain.BadRequestf("unknown event %q", c.Event)
	}
	return nil
}

// Apply validates cmd against the transition table and the actor's rights,
// then writes the new status and its side-effect fields in one
// compare-and-set. A rejected command leaves the job untouched.
func (m *Machine) Apply(ctx context.Context, cmd Command) (*domain.Job, error) {
	job, err := m.apply(ctx, cmd)
	metrics.TransitionsTotal.WithLabelValues(string(cmd.Event), resultLabel(err)).Inc()
	if err != nil {
		m.logger.Warn("Job event rejected",
			slog.String("job_id", cmd.JobID),
			slog.String("event", string(cmd.Event)),
			slog.String("kind", string(domain.KindOf(err))),
			slog.Any("error", err),
		)
		return nil, err
	}
	return job, nil
}

func (m *Machine) apply(ctx context.Context, cmd Command) (*domain.Job, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	job, err := m.store.GetJob(ctx, cmd.JobID)
	if err != nil {
		return nil, storeError(err, "failed to load job")
	}
	agent, err := m.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		return nil, storeError(err, "failed to load agent")
	}

	if err := authorize(cmd.Actor, cmd.Event, job, agent); err != nil {
		return nil, err
	}
	if cmd.Expected != "" && job.Status != cmd.Expected {
		return nil, domain.RejectTransition(cmd.Event, job.Status)
	}
	if !Permits(job.Status, cmd.Event) {
		return nil, domain.RejectTransition(cmd.Event, job.Status)
	}

	update, err := m.buildUpdate(ctx, cmd, job, agent)
	if err != nil {
		return nil, err
	}
	if !allowsTarget(cmd.Event, update.Status) {
		return nil, domain.NewError(domain.KindInternal, "event %s cannot target %s", cmd.Event, update.Status)
	}

	updated, err := m.store.UpdateJobStatus(ctx, job.ID, job.Status, update)
	if err != nil {
		if mismatch, ok := domain.AsStatusMismatch(err); ok {
			return nil, domain.RejectTransition(cmd.Event, mismatch.Current)
		}
		return nil, storeError(err, "failed to update job")
	}

	m.logger.Info("Job transitioned",
		slog.String("job_id", updated.ID),
		slog.String("event", string(cmd.Event)),
		slog.String("from", string(job.Status)),
		slog.String("to", string(updated.Status)),
	)

	if update.Stats != nil {
		m.recomputeTrust(ctx, job.AgentID)
	}
	if cmd.Event == domain.EventPaymentConfirmed {
		m.schedule(ctx, updated, agent)
	}

	return updated, nil
}

func (m *Machine) buildUpdate(ctx context.Context, cmd Command, job *domain.Job, agent *domain.Agent) (domain.JobUpdate, error) {
	now := m.now().UTC()
	update := domain.JobUpdate{}

	switch cmd.Event {
	case domain.EventPaymentConfirmed:
		if err := m.verifyPayment(ctx, cmd.TxRef, job, agent); err != nil {
			return update, err
		}
		txRef := strings.TrimSpace(cmd.TxRef)
		update.PaymentTxRef = &txRef
		update.PaidAt = &now

	case domain.EventAgentAccept:
		update.AcceptedAt = &now

	case domain.EventAgentDecline:
		// Nothing was paid on a pending job, so nothing is refunded.
		refund := domain.Money(0)
		if job.Status == domain.StatusPaid {
			refund = job.Price
			update.Stats = &domain.StatsDelta{RefundedJobs: 1}
		}
		update.RefundAmount = &refund
		update.RefundedAt = &now

	case domain.EventAgentDeliver:
		update.Output = cmd.Output
		update.DeliveredAt = &now
		// Response time counts the first delivery only.
		if job.DeliveredAt == nil && job.PaidAt != nil {
			elapsed := now.Sub(*job.PaidAt)
			update.Stats = &domain.StatsDelta{ResponseTime: &elapsed}
		}

	case domain.EventPurchaserApprove:
		update.Rating = cmd.Rating
		update.CompletedAt = &now
		update.Stats = &domain.StatsDelta{
			CompletedJobs: 1,
			Earned:        job.Price,
			Rating:        cmd.Rating,
		}

	case domain.EventPurchaserRevision:

	case domain.EventPurchaserDispute:
		reason := strings.TrimSpace(cmd.Reason)
		update.DisputeReason = &reason
		update.DisputedAt = &now

	case domain.EventDisputeResolved:
		settlement, err := m.resolver.Settle(job, cmd.Outcome)
		if err != nil {
			return update, err
		}
		refund := settlement.RefundAmount
		stats := settlement.Stats
		update.Status = settlement.Status
		update.RefundAmount = &refund
		update.ResolvedAt = &now
		update.Stats = &stats
		switch settlement.Status {
		case domain.StatusCompleted:
			update.CompletedAt = &now
		case domain.StatusRefunded:
			update.RefundedAt = &now
		}
		return update, nil

	case domain.EventProcessingFailed:
		msg := strings.TrimSpace(cmd.Error)
		update.ErrorMessage = &msg
		update.FailedAt = &now
		update.Stats = &domain.StatsDelta{FailedJobs: 1}
	}

	next, err := Next(job.Status, cmd.Event)
	if err != nil {
		return update, err
	}
	update.Status = next
	return update, nil
}

func (m *Machine) verifyPayment(ctx context.Context, txRef string, job *domain.Job, agent *domain.Agent) error {
	if m.verifier == nil {
		return domain.NewError(domain.KindExternalVerification, "payment verifier is not configured")
	}

	recipient := agent.PayoutAddress
	if recipient == "" {
		recipient = m.defaultRecipient
	}

	start := time.Now()
	v, err := m.verifier.Verify(ctx, strings.TrimSpace(txRef), job.Price, recipient)
	metrics.PaymentVerificationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Wrap(err, domain.KindExternalVerification, "payment verification failed")
	}
	if !v.Valid {
		reason := v.Error
		if reason == "" {
			reason = "transaction rejected"
		}
		return domain.NewError(domain.KindExternalVerification, "payment verification failed: %s", reason)
	}
	if v.Amount != 0 && v.Amount < job.Price {
		return domain.NewError(domain.KindExternalVerification,
			"payment verification failed: paid %s, expected %s", v.Amount, job.Price)
	}

	m.logger.Info("Payment verified",
		slog.String("job_id", job.ID),
		slog.String("tx_ref", txRef),
		slog.Uint64("block_number", v.BlockNumber),
	)
	return nil
}

func (m *Machine) schedule(ctx context.Context, job *domain.Job, agent *domain.Agent) {
	if m.scheduler == nil {
		return
	}
	if err := m.scheduler.Schedule(ctx, job, agent); err != nil {
		m.logger.Error("Failed to schedule dispatch",
			slog.String("job_id", job.ID),
			slog.String("agent_id", agent.ID),
			slog.Any("error", err),
		)
	}
}

// recomputeTrust refreshes the agent's cached tier. The transition is already
// committed, so failures are logged only; the tier is rebuilt from full
// statistics on the next call.
func (m *Machine) recomputeTrust(ctx context.Context, agentID string) {
	if _, _, err := m.RefreshTrust(ctx, agentID); err != nil {
		m.logger.Error("Failed to recompute trust tier",
			slog.String("agent_id", agentID),
			slog.Any("error", err),
		)
	}
}

// RefreshTrust evaluates the agent's current statistics and caches the result.
func (m *Machine) RefreshTrust(ctx context.Context, agentID string) (*domain.Agent, trust.Assessment, error) {
	agent, err := m.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, trust.Assessment{}, storeError(err, "failed to load agent")
	}

	a := m.calc.Evaluate(trust.StatsFromAgent(agent))
	if err := m.store.SaveTrust(ctx, agentID, a.Tier.String(), a.Score); err != nil {
		return nil, trust.Assessment{}, storeError(err, "failed to save trust tier")
	}
	agent.TrustTier = a.Tier.String()
	agent.TrustScore = a.Score

	metrics.TrustRecomputesTotal.WithLabelValues(a.Tier.String()).Inc()
	m.logger.Debug("Trust tier recomputed",
		slog.String("agent_id", agentID),
		slog.String("tier", a.Tier.String()),
		slog.Float64("score", a.Score),
		slog.Float64("progress", a.Progress),
	)
	return agent, a, nil
}

// ApplyOutcome feeds a background dispatch result back into the machine as the
// system actor. A webhook acknowledgement changes nothing; the agent moves the
// job on through its own callbacks. Outcomes apply only while the job is still
// in the status the dispatch started from, so a job the agent already moved
// on rejects a late failure with a validation error.
func (m *Machine) ApplyOutcome(ctx context.Context, out dispatch.Outcome) error {
	from := out.From
	if from == "" {
		from = domain.StatusPaid
	}

	var err error
	switch out.Kind {
	case dispatch.OutcomeAcknowledged:
		return nil
	case dispatch.OutcomeDelivered:
		_, err = m.Apply(ctx, Command{
			JobID:    out.JobID,
			Event:    domain.EventAgentDeliver,
			Actor:    domain.SystemActor,
			Output:   out.Output,
			Expected: from,
		})
	case dispatch.OutcomeFailed:
		msg := out.Message
		if msg == "" {
			msg = domain.WebhookFailureMessage
		}
		if out.Err != nil {
			m.logger.Warn("Dispatch failed",
				slog.String("job_id", out.JobID),
				slog.String("kind", string(domain.KindOf(out.Err))),
				slog.Any("error", out.Err),
			)
		}
		_, err = m.Apply(ctx, Command{
			JobID:    out.JobID,
			Event:    domain.EventProcessingFailed,
			Actor:    domain.SystemActor,
			Error:    msg,
			Expected: from,
		})
	default:
		return domain.BadRequestf("unknown dispatch outcome %q", out.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply %s outcome to job %s: %w", out.Kind, out.JobID, err)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case domain.IsValidation(err):
		return "rejected"
	default:
		return "error"
	}
}

// storeError keeps classified store errors and marks the rest internal.
func storeError(err error, message string) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return domain.Wrap(err, domain.KindInternal, message)
}
