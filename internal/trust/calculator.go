package trust

import (
	"math"
	"sort"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Stats is the calculator's view of an agent.
type Stats struct {
	CompletedJobs    int
	AverageRating    float64
	AvgResponseTime  time.Duration
	ResponseSamples  int
	CompletionRate   float64
	TotalEarned      domain.Money
	IdentityVerified bool
	WebhookVerified  bool
	SecurityAudited  bool
}

// StatsFromAgent reads the raw statistics of a. Cached tier fields are ignored.
func StatsFromAgent(a *domain.Agent) Stats {
	return Stats{
		CompletedJobs:    a.TotalJobs,
		AverageRating:    a.AverageRating,
		AvgResponseTime:  a.AvgResponseTime(),
		ResponseSamples:  a.ResponseSamples,
		CompletionRate:   a.CompletionRate,
		TotalEarned:      a.TotalEarned,
		IdentityVerified: a.IdentityVerified,
		WebhookVerified:  a.WebhookVerified,
		SecurityAudited:  a.SecurityAudited,
	}
}

func (s Stats) fullyVerified() bool {
	return s.IdentityVerified && s.WebhookVerified && s.SecurityAudited
}

// Assessment is the derived reputation of an agent.
type Assessment struct {
	Tier     Tier  `json:"tier"`
	NextTier *Tier `json:"next_tier,omitempty"`
	// Progress toward NextTier in percent, 100 at the top tier.
	Progress float64 `json:"progress"`
	// Score is a 0-100 composite of all statistics.
	Score float64 `json:"score"`
	// Unmet names the NextTier requirements not yet satisfied.
	Unmet []string `json:"unmet,omitempty"`
}

// Calculator evaluates statistics against an ordered tier table. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	levels []Level
}

// NewCalculator builds a calculator over levels, or DefaultLevels when empty.
func NewCalculator(levels []Level) *Calculator {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tier < sorted[j].Tier })
	return &Calculator{levels: sorted}
}

// Evaluate returns the assessment for s. The result depends only on s.
// Progress is measured toward the tier directly above the current one, so it
// restarts against the higher requirements whenever the agent is promoted.
func (c *Calculator) Evaluate(s Stats) Assessment {
	current := 0
	for i, level := range c.levels {
		if len(unmet(level.Requirement, s)) == 0 {
			current = i
		}
	}

	a := Assessment{
		Tier:     c.levels[current].Tier,
		Progress: 100,
		Score:    Score(s),
	}

	if current+1 < len(c.levels) {
		next := c.levels[current+1]
		a.NextTier = &next.Tier
		a.Progress = Progress(next.Requirement, s)
		a.Unmet = unmet(next.Requirement, s)
	}

	return a
}

// Progress is the mean of the job, rating, completion rate and earnings ratios
// toward req, each capped at 100%. A zero requirement counts as 100%.
func Progress(req Requirement, s Stats) float64 {
	ratios := []float64{
		ratio(float64(s.CompletedJobs), float64(req.MinJobs)),
		ratio(s.AverageRating, req.MinRating),
		ratio(s.CompletionRate, req.MinCompletionRate),
		ratio(float64(s.TotalEarned), float64(req.MinEarned)),
	}

	var sum float64
	for _, r := range ratios {
		sum += r
	}
	return round2(sum / float64(len(ratios)) * 100)
}

func ratio(current, required float64) float64 {
	if required <= 0 {
		return 1
	}
	if current <= 0 {
		return 0
	}
	return math.Min(current/required, 1)
}

func unmet(req Requirement, s Stats) []string {
	var missing []string
	if s.CompletedJobs < req.MinJobs {
		missing = append(missing, "completed_jobs")
	}
	if s.AverageRating < req.MinRating {
		missing = append(missing, "average_rating")
	}
	if req.MaxResponseTime > 0 && s.AvgResponseTime > req.MaxResponseTime {
		missing = append(missing, "response_time")
	}
	if s.CompletionRate < req.MinCompletionRate {
		missing = append(missing, "completion_rate")
	}
	if s.TotalEarned < req.MinEarned {
		missing = append(missing, "total_earned")
	}
	if req.RequireVerification && !s.fullyVerified() {
		missing = append(missing, "verification")
	}
	return missing
}

// Score weights: completion 30, rating 30, volume 20, responsiveness 10,
// verification 10.
func Score(s Stats) float64 {
	completion := clamp01(s.CompletionRate) * 30
	rating := clamp01(s.AverageRating/5) * 30
	volume := clamp01(float64(s.CompletedJobs)/100) * 20

	responsiveness := 10.0
	if s.ResponseSamples > 0 {
		responsiveness = clamp01(1-float64(s.AvgResponseTime)/float64(24*time.Hour)) * 10
	}

	flags := 0
	for _, ok := range []bool{s.IdentityVerified, s.WebhookVerified, s.SecurityAudited} {
		if ok {
			flags++
		}
	}
	verification := float64(flags) / 3 * 10

	return round2(completion + rating + volume + responsiveness + verification)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
