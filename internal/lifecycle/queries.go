package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/trust"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateJob opens a pending job for the actor against an existing agent.
func (m *Machine) CreateJob(ctx context.Context, actor domain.Actor, req domain.NewJob) (*domain.Job, error) {
	if actor.Wallet == "" {
		return nil, domain.Unauthorizedf("a wallet is required to create jobs")
	}
	if req.AgentID == "" {
		return nil, domain.BadRequestf("agent id is required")
	}
	if strings.TrimSpace(req.ServiceKey) == "" {
		return nil, domain.BadRequestf("service key is required")
	}
	if req.Price <= 0 {
		return nil, domain.BadRequestf("price must be positive")
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return nil, domain.BadRequestf("input must be valid JSON")
	}

	if _, err := m.store.GetAgent(ctx, req.AgentID); err != nil {
		return nil, storeError(err, "failed to load agent")
	}

	now := m.now().UTC()
	job := &domain.Job{
		ID:              uuid.New().String(),
		Status:          domain.StatusPending,
		Price:           req.Price,
		RequesterWallet: actor.Wallet,
		AgentID:         req.AgentID,
		SkillID:         req.SkillID,
		ServiceKey:      strings.TrimSpace(req.ServiceKey),
		Input:           req.Input,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, storeError(err, "failed to create job")
	}

	m.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("agent_id", job.AgentID),
		slog.String("price", job.Price.String()),
	)
	return job, nil
}

// RegisterAgent creates an agent owned by the actor.
func (m *Machine) RegisterAgent(ctx context.Context, actor domain.Actor, req domain.NewAgent) (*domain.Agent, error) {
	if actor.Wallet == "" {
		return nil, domain.Unauthorizedf("a wallet is required to register agents")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.BadRequestf("agent name is required")
	}
	if req.WebhookURL != nil {
		if err := validateWebhookURL(*req.WebhookURL); err != nil {
			return nil, err
		}
	}

	payout := strings.TrimSpace(req.PayoutAddress)
	if payout == "" {
		payout = actor.Wallet
	}

	now := m.now().UTC()
	agent := &domain.Agent{
		ID:            uuid.New().String(),
		OwnerWallet:   actor.Wallet,
		PayoutAddress: payout,
		Name:          strings.TrimSpace(req.Name),
		WebhookURL:    req.WebhookURL,
		TrustTier:     trust.TierNew.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateAgent(ctx, agent); err != nil {
		return nil, storeError(err, "failed to create agent")
	}

	m.logger.Info("Agent registered",
		slog.String("agent_id", agent.ID),
		slog.Bool("has_webhook", agent.WebhookURL != nil),
	)
	return agent, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.BadRequestf("webhook url must be an absolute http(s) url")
	}
	return nil
}

// GetJob returns a job visible to the actor.
func (m *Machine) GetJob(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "failed to load job")
	}
	agent, err := m.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		return nil, storeError(err, "failed to load agent")
	}
	if !canView(actor, job, agent) {
		return nil, domain.Unauthorizedf("actor may not view job %s", jobID)
	}
	return job, nil
}

// ListJobs pages through jobs. Non-admin actors see the jobs they requested,
// or the jobs of an agent they own when filtering by agent.
func (m *Machine) ListJobs(ctx context.Context, actor domain.Actor, filter domain.JobFilter) (domain.JobPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.JobPage{}, domain.BadRequestf("unknown status %q", filter.Status)
	}
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}
	if filter.PageSize > MaxPageSize {
		filter.PageSize = MaxPageSize
	}

	if !actor.Admin {
		owned := false
		if filter.AgentID != "" {
			agent, err := m.store.GetAgent(ctx, filter.AgentID)
			if err != nil {
				return domain.JobPage{}, storeError(err, "failed to load agent")
			}
			owned = agent.OwnerWallet == actor.Wallet
		}
		if !owned {
			filter.RequesterWallet = actor.Wallet
		}
	}

	page, err := m.store.ListJobs(ctx, filter)
	if err != nil {
		return domain.JobPage{}, storeError(err, "failed to list jobs")
	}
	return page, nil
}

// Agent returns an agent with a fresh trust assessment.
func (m *Machine) Agent(ctx context.Context, agentID string) (*domain.Agent, trust.Assessment, error) {
	agent, err := m.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, trust.Assessment{}, storeError(err, "failed to load agent")
	}
	return agent, m.calc.Evaluate(trust.StatsFromAgent(agent)), nil
}
