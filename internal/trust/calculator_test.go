package trust

import (
	"testing"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_Evaluate(t *testing.T) {
	calc := NewCalculator(nil)

	tests := []struct {
		name      string
		stats     Stats
		wantTier  Tier
		wantNext  Tier
		wantUnmet []string
	}{
		{
			name:      "fresh agent is new",
			stats:     Stats{},
			wantTier:  TierNew,
			wantNext:  TierRising,
			wantUnmet: []string{"completed_jobs", "average_rating", "completion_rate", "total_earned"},
		},
		{
			name: "meets rising",
			stats: Stats{
				CompletedJobs:   5,
				AverageRating:   4.4,
				AvgResponseTime: time.Hour,
				ResponseSamples: 5,
				CompletionRate:  1,
				TotalEarned:     domain.MustParseMoney("50.00"),
			},
			wantTier:  TierRising,
			wantNext:  TierEstablished,
			wantUnmet: []string{"completed_jobs", "total_earned"},
		},
		{
			name: "slow responses hold an agent back",
			stats: Stats{
				CompletedJobs:   30,
				AverageRating:   4.5,
				AvgResponseTime: 13 * time.Hour,
				ResponseSamples: 30,
				CompletionRate:  0.95,
				TotalEarned:     domain.MustParseMoney("900.00"),
			},
			wantTier:  TierRising,
			wantNext:  TierEstablished,
			wantUnmet: []string{"response_time"},
		},
		{
			name: "verified tier needs every verification flag",
			stats: Stats{
				CompletedJobs:    300,
				AverageRating:    4.9,
				AvgResponseTime:  time.Hour,
				ResponseSamples:  300,
				CompletionRate:   0.99,
				TotalEarned:      domain.MustParseMoney("30000.00"),
				IdentityVerified: true,
				WebhookVerified:  true,
			},
			wantTier:  TierTrusted,
			wantNext:  TierVerified,
			wantUnmet: []string{"verification"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := calc.Evaluate(tt.stats)

			assert.Equal(t, tt.wantTier, a.Tier)
			require.NotNil(t, a.NextTier)
			assert.Equal(t, tt.wantNext, *a.NextTier)
			assert.Equal(t, tt.wantUnmet, a.Unmet)
			assert.LessOrEqual(t, a.Progress, 100.0)
		})
	}
}

func TestCalculator_TopTier(t *testing.T) {
	calc := NewCalculator(nil)

	a := calc.Evaluate(Stats{
		CompletedJobs:    250,
		AverageRating:    5,
		AvgResponseTime:  30 * time.Minute,
		ResponseSamples:  250,
		CompletionRate:   1,
		TotalEarned:      domain.MustParseMoney("25000.00"),
		IdentityVerified: true,
		WebhookVerified:  true,
		SecurityAudited:  true,
	})

	assert.Equal(t, TierVerified, a.Tier)
	assert.Nil(t, a.NextTier)
	assert.Equal(t, 100.0, a.Progress)
	assert.Empty(t, a.Unmet)
}

func TestProgress_NonDecreasingInCompletedJobs(t *testing.T) {
	calc := NewCalculator(nil)

	// Rating stays below the rising threshold so the target tier is fixed.
	stats := Stats{
		AverageRating:  3.5,
		CompletionRate: 0.9,
		TotalEarned:    domain.MustParseMoney("20.00"),
	}

	previous := -1.0
	for jobs := 0; jobs <= 20; jobs++ {
		stats.CompletedJobs = jobs
		a := calc.Evaluate(stats)

		assert.Equal(t, TierNew, a.Tier)
		assert.GreaterOrEqual(t, a.Progress, previous, "jobs=%d", jobs)
		assert.LessOrEqual(t, a.Progress, 100.0, "jobs=%d", jobs)
		previous = a.Progress
	}
}

func TestProgress_ResetsOnPromotion(t *testing.T) {
	calc := NewCalculator(nil)

	// Everything but the job count already meets rising.
	stats := Stats{
		AverageRating:  4.0,
		CompletionRate: 0.9,
		TotalEarned:    domain.MustParseMoney("50.00"),
	}

	stats.CompletedJobs = 4
	before := calc.Evaluate(stats)
	assert.Equal(t, TierNew, before.Tier)
	assert.InDelta(t, 95.0, before.Progress, 0.01)

	stats.CompletedJobs = 5
	after := calc.Evaluate(stats)
	assert.Equal(t, TierRising, after.Tier)
	require.NotNil(t, after.NextTier)
	assert.Equal(t, TierEstablished, *after.NextTier)
	// jobs 5/25, rating 4.0/4.3, completion met, earned 50/500
	assert.InDelta(t, 55.76, after.Progress, 0.01)

	// Between promotions progress never drops.
	previous, tier := -1.0, TierNew
	for jobs := 0; jobs <= 30; jobs++ {
		stats.CompletedJobs = jobs
		a := calc.Evaluate(stats)
		if a.Tier != tier {
			assert.Greater(t, a.Tier, tier, "jobs=%d", jobs)
			tier, previous = a.Tier, -1
		}
		assert.GreaterOrEqual(t, a.Progress, previous, "jobs=%d", jobs)
		assert.LessOrEqual(t, a.Progress, 100.0, "jobs=%d", jobs)
		previous = a.Progress
	}
}

func TestProgress_ZeroRequirementCountsAsMet(t *testing.T) {
	p := Progress(Requirement{MinJobs: 10}, Stats{CompletedJobs: 5})

	// jobs 50%, three inapplicable requirements at 100%
	assert.Equal(t, 87.5, p)
}

func TestProgress_CapsEachRatio(t *testing.T) {
	req := Requirement{
		MinJobs:           1,
		MinRating:         1,
		MinCompletionRate: 0.5,
		MinEarned:         domain.MustParseMoney("1.00"),
	}

	p := Progress(req, Stats{
		CompletedJobs:  1000,
		AverageRating:  5,
		CompletionRate: 1,
		TotalEarned:    domain.MustParseMoney("1000.00"),
	})

	assert.Equal(t, 100.0, p)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	calc := NewCalculator(nil)
	stats := Stats{CompletedJobs: 12, AverageRating: 4.4, CompletionRate: 0.92, TotalEarned: 12345}

	first := calc.Evaluate(stats)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, calc.Evaluate(stats))
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  float64
	}{
		{
			name:  "no history keeps responsiveness only",
			stats: Stats{},
			want:  10,
		},
		{
			name: "perfect agent",
			stats: Stats{
				CompletedJobs:    100,
				AverageRating:    5,
				ResponseSamples:  1,
				CompletionRate:   1,
				IdentityVerified: true,
				WebhookVerified:  true,
				SecurityAudited:  true,
			},
			want: 100,
		},
		{
			name: "half day responses cost half the responsiveness weight",
			stats: Stats{
				AvgResponseTime: 12 * time.Hour,
				ResponseSamples: 3,
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.stats))
		})
	}
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier("trusted")
	require.True(t, ok)
	assert.Equal(t, TierTrusted, tier)
	assert.Equal(t, "trusted", tier.String())

	_, ok = ParseTier("legendary")
	assert.False(t, ok)
}
