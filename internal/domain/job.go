package domain

import (
	"encoding/json"
	"time"
)

// Job is one purchased unit of work moving through the status lifecycle.
type Job struct {
	ID              string          `db:"id" json:"id"`
	Status          Status          `db:"status" json:"status"`
	Price           Money           `db:"price_cents" json:"price"`
	RequesterWallet string          `db:"requester_wallet" json:"requester_wallet"`
	AgentID         string          `db:"agent_id" json:"agent_id"`
	SkillID         string          `db:"skill_id" json:"skill_id"`
	ServiceKey      string          `db:"service_key" json:"service_key"`
	Input           json.RawMessage `db:"-" json:"input,omitempty"`
	PaymentTxRef    *string         `db:"payment_tx_ref" json:"payment_tx_ref,omitempty"`
	Output          json.RawMessage `db:"-" json:"output,omitempty"`
	DisputeReason   *string         `db:"dispute_reason" json:"dispute_reason,omitempty"`
	RefundAmount    *Money          `db:"refund_cents" json:"refund_amount,omitempty"`
	ErrorMessage    *string         `db:"error_message" json:"error,omitempty"`
	Rating          *int            `db:"rating" json:"rating,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	PaidAt          *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	AcceptedAt      *time.Time      `db:"accepted_at" json:"accepted_at,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	DisputedAt      *time.Time      `db:"disputed_at" json:"disputed_at,omitempty"`
	ResolvedAt      *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	RefundedAt      *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
	FailedAt        *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
}

// TerminalAt returns the timestamp of the terminal status, or nil while the job
// is still open.
func (j *Job) TerminalAt() *time.Time {
	switch {
	case j.CompletedAt != nil:
		return j.CompletedAt
	case j.RefundedAt != nil:
		return j.RefundedAt
	case j.FailedAt != nil:
		return j.FailedAt
	default:
		return nil
	}
}

// NewJob holds the purchaser supplied fields of a job.
type NewJob struct {
	AgentID    string
	SkillID    string
	ServiceKey string
	Input      json.RawMessage
	Price      Money
}

// JobUpdate is the set of fields written together with a status change. Nil
// fields are left untouched.
type JobUpdate struct {
	Status        Status
	PaymentTxRef  *string
	Output        json.RawMessage
	DisputeReason *string
	RefundAmount  *Money
	ErrorMessage  *string
	Rating        *int
	PaidAt        *time.Time
	AcceptedAt    *time.Time
	DeliveredAt   *time.Time
	CompletedAt   *time.Time
	DisputedAt    *time.Time
	ResolvedAt    *time.Time
	RefundedAt    *time.Time
	FailedAt      *time.Time

	// Stats is applied to the job's agent in the same atomic step as the
	// status write.
	Stats *StatsDelta
}

// Apply copies the update onto j.
func (u *JobUpdate) Apply(j *Job, now time.Time) {
	j.Status = u.Status
	j.UpdatedAt = now
	if u.PaymentTxRef != nil {
		j.PaymentTxRef = u.PaymentTxRef
	}
	if u.Output != nil {
		j.Output = u.Output
	}
	if u.DisputeReason != nil {
		j.DisputeReason = u.DisputeReason
	}
	if u.RefundAmount != nil {
		j.RefundAmount = u.RefundAmount
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = u.ErrorMessage
	}
	if u.Rating != nil {
		j.Rating = u.Rating
	}
	setTime(&j.PaidAt, u.PaidAt)
	setTime(&j.AcceptedAt, u.AcceptedAt)
	setTime(&j.DeliveredAt, u.DeliveredAt)
	setTime(&j.CompletedAt, u.CompletedAt)
	setTime(&j.DisputedAt, u.DisputedAt)
	setTime(&j.ResolvedAt, u.ResolvedAt)
	setTime(&j.RefundedAt, u.RefundedAt)
	setTime(&j.FailedAt, u.FailedAt)
}

func setTime(dst **time.Time, src *time.Time) {
	if src != nil {
		t := *src
		*dst = &t
	}
}
