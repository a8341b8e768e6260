package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/trust"
)

type CreateJobRequest struct {
	AgentID    string          `json:"agent_id" binding:"required"`
	SkillID    string          `json:"skill_id"`
	ServiceKey string          `json:"service_key" binding:"required"`
	Input      json.RawMessage `json:"input"`
	Price      domain.Money    `json:"price" binding:"required"`
}

type ListJobsRequest struct {
	AgentID  string `form:"agent_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type ConfirmPaymentRequest struct {
	TxRef string `json:"tx_ref" binding:"required"`
}

type DeliverRequest struct {
	Output json.RawMessage `json:"output" binding:"required"`
}

type ApproveRequest struct {
	Rating *int `json:"rating"`
}

type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

type FailJobRequest struct {
	Error string `json:"error" binding:"required"`
}

type RegisterAgentRequest struct {
	Name          string  `json:"name" binding:"required"`
	PayoutAddress string  `json:"payout_address"`
	WebhookURL    *string `json:"webhook_url"`
}

type AgentResponse struct {
	Agent *domain.Agent    `json:"agent"`
	Trust trust.Assessment `json:"trust"`
}

type ChallengeRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

type VerifyRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status string `json:"status,omitempty"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Time       time.Time         `json:"time"`
	Components map[string]string `json:"components,omitempty"`
}
