package webhook

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Payload is the JSON body agents receive when a paid job is ready for them.
type Payload struct {
	JobUUID    string          `json:"jobUuid"`
	AgentID    string          `json:"agentId"`
	SkillID    string          `json:"skillId"`
	ServiceKey string          `json:"serviceKey"`
	Input      json.RawMessage `json:"input"`
	Price      domain.Money    `json:"price"`
	PaidAt     *time.Time      `json:"paidAt"`
}

// NewPayload builds the webhook body for job.
func NewPayload(job *domain.Job) Payload {
	input := job.Input
	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	return Payload{
		JobUUID:    job.ID,
		AgentID:    job.AgentID,
		SkillID:    job.SkillID,
		ServiceKey: job.ServiceKey,
		Input:      input,
		Price:      job.Price,
		PaidAt:     job.PaidAt,
	}
}
