// Package dispatch runs the post-payment hand-off of a job to its agent and
// reports the result back as an Outcome message.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// OutcomeKind classifies a finished dispatch.
type OutcomeKind string

const (
	// OutcomeAcknowledged means the agent's webhook accepted the job. The agent
	// progresses it through its own callbacks.
	OutcomeAcknowledged OutcomeKind = "acknowledged"
	// OutcomeDelivered means the task processor produced the output.
	OutcomeDelivered OutcomeKind = "delivered"
	// OutcomeFailed means the job cannot progress and must be failed.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the message a background dispatch posts back to the state
// machine. Each dispatch produces exactly one.
type Outcome struct {
	JobID string
	// From is the job status the dispatch started from. The outcome only
	// applies while the job is still in it.
	From    domain.Status
	Kind    OutcomeKind
	Output  json.RawMessage
	Message string
	Err     error
}

// Message is the queued request to dispatch a paid job.
type Message struct {
	JobID       string    `json:"job_id"`
	AgentID     string    `json:"agent_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
