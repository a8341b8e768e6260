package dispute

import (
	"testing"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disputedJob(price string) *domain.Job {
	return &domain.Job{
		ID:     "0b7e2d7e-3f0c-4b5e-9d0a-6c1f4d1e2a01",
		Status: domain.StatusDisputed,
		Price:  domain.MustParseMoney(price),
	}
}

func TestResolver_Settle(t *testing.T) {
	r := NewResolver(DefaultPartialPercent)

	tests := []struct {
		name       string
		outcome    Outcome
		wantStatus domain.Status
		wantRefund string
		wantStats  domain.StatsDelta
	}{
		{
			name:       "refund returns the full price",
			outcome:    OutcomeRefund,
			wantStatus: domain.StatusRefunded,
			wantRefund: "10.00",
			wantStats:  domain.StatsDelta{RefundedJobs: 1},
		},
		{
			name:       "partial returns half",
			outcome:    OutcomePartial,
			wantStatus: domain.StatusRefunded,
			wantRefund: "5.00",
			wantStats:  domain.StatsDelta{RefundedJobs: 1},
		},
		{
			name:       "release credits the agent",
			outcome:    OutcomeRelease,
			wantStatus: domain.StatusCompleted,
			wantRefund: "0.00",
			wantStats:  domain.StatsDelta{CompletedJobs: 1, Earned: domain.MustParseMoney("10.00")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Settle(disputedJob("10.00"), tt.outcome)
			require.NoError(t, err)

			assert.Equal(t, tt.outcome, s.Outcome)
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantRefund, s.RefundAmount.String())
			assert.Equal(t, tt.wantStats, s.Stats)
			assert.True(t, s.Status.IsTerminal())
		})
	}
}

func TestResolver_PartialRoundsHalfUp(t *testing.T) {
	s, err := NewResolver(0).Settle(disputedJob("0.05"), OutcomePartial)
	require.NoError(t, err)

	assert.Equal(t, "0.03", s.RefundAmount.String())
}

func TestResolver_ConfiguredPartialPercent(t *testing.T) {
	r := NewResolver(30)
	assert.Equal(t, 30, r.PartialPercent())

	s, err := r.Settle(disputedJob("10.00"), OutcomePartial)
	require.NoError(t, err)
	assert.Equal(t, "3.00", s.RefundAmount.String())
}

func TestResolver_RejectsUndisputedJob(t *testing.T) {
	job := disputedJob("10.00")
	job.Status = domain.StatusDelivered

	_, err := NewResolver(DefaultPartialPercent).Settle(job, OutcomeRefund)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StatusDelivered, domain.StatusOf(err))
}

func TestParseOutcome(t *testing.T) {
	for _, name := range []string{"refund", "partial", "release"} {
		o, err := ParseOutcome(name)
		require.NoError(t, err)
		assert.Equal(t, Outcome(name), o)
	}

	_, err := ParseOutcome("split")
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
}
