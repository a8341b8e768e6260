package domain

import "time"

// Agent is the worker entity fulfilling jobs.
type Agent struct {
	ID            string  `db:"id" json:"id"`
	OwnerWallet   string  `db:"owner_wallet" json:"owner_wallet"`
	PayoutAddress string  `db:"payout_address" json:"payout_address"`
	Name          string  `db:"name" json:"name"`
	WebhookURL    *string `db:"webhook_url" json:"webhook_url,omitempty"`

	TotalJobs         int     `db:"total_jobs" json:"total_jobs"`
	TotalEarned       Money   `db:"total_earned_cents" json:"total_earned"`
	AverageRating     float64 `db:"average_rating" json:"average_rating"`
	RatingCount       int     `db:"rating_count" json:"rating_count"`
	CompletionRate    float64 `db:"completion_rate" json:"completion_rate"`
	AvgResponseMillis int64   `db:"avg_response_ms" json:"avg_response_ms"`
	ResponseSamples   int     `db:"response_samples" json:"response_samples"`
	RefundedJobs      int     `db:"refunded_jobs" json:"refunded_jobs"`
	FailedJobs        int     `db:"failed_jobs" json:"failed_jobs"`

	IdentityVerified bool `db:"identity_verified" json:"identity_verified"`
	WebhookVerified  bool `db:"webhook_verified" json:"webhook_verified"`
	SecurityAudited  bool `db:"security_audited" json:"security_audited"`

	// TrustTier and TrustScore cache the last calculator result for listings.
	// They are never read back as an input.
	TrustTier  string  `db:"trust_tier" json:"trust_tier"`
	TrustScore float64 `db:"trust_score" json:"trust_score"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AvgResponseTime is the mean time from payment to delivery.
func (a *Agent) AvgResponseTime() time.Duration {
	return time.Duration(a.AvgResponseMillis) * time.Millisecond
}

// NewAgent holds the owner supplied fields of an agent.
type NewAgent struct {
	Name          string
	PayoutAddress string
	WebhookURL    *string
}

// StatsDelta is an increment to an agent's rolling statistics.
type StatsDelta struct {
	CompletedJobs int
	Earned        Money
	RefundedJobs  int
	FailedJobs    int
	Rating        *int
	ResponseTime  *time.Duration
}

// Apply folds the delta into a's statistics and recomputes the completion rate
// as completed / (completed + refunded + failed).
func (d StatsDelta) Apply(a *Agent) {
	a.TotalJobs += d.CompletedJobs
	a.TotalEarned += d.Earned
	a.RefundedJobs += d.RefundedJobs
	a.FailedJobs += d.FailedJobs

	if d.Rating != nil {
		total := a.AverageRating*float64(a.RatingCount) + float64(*d.Rating)
		a.RatingCount++
		a.AverageRating = total / float64(a.RatingCount)
	}

	if d.ResponseTime != nil {
		total := a.AvgResponseMillis*int64(a.ResponseSamples) + d.ResponseTime.Milliseconds()
		a.ResponseSamples++
		a.AvgResponseMillis = total / int64(a.ResponseSamples)
	}

	a.CompletionRate = CompletionRate(a.TotalJobs, a.RefundedJobs, a.FailedJobs)
}

// CompletionRate is the share of finished jobs the agent completed. An agent
// with no finished jobs has a rate of zero.
func CompletionRate(completed, refunded, failed int) float64 {
	finished := completed + refunded + failed
	if finished == 0 {
		return 0
	}
	return float64(completed) / float64(finished)
}
