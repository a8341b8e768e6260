// Package trust derives an agent's reputation tier and score from its
// accumulated job statistics.
package trust

import (
	"fmt"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Tier is a reputation rank. Tiers are totally ordered by their numeric value.
type Tier int

const (
	TierNew Tier = iota
	TierRising
	TierEstablished
	TierTrusted
	TierVerified
)

var tierNames = map[Tier]string{
	TierNew:         "new",
	TierRising:      "rising",
	TierEstablished: "established",
	TierTrusted:     "trusted",
	TierVerified:    "verified",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, ok := ParseTier(string(text))
	if !ok {
		return fmt.Errorf("unknown trust tier %q", text)
	}
	*t = parsed
	return nil
}

// ParseTier returns the tier with the given name.
func ParseTier(name string) (Tier, bool) {
	for t, n := range tierNames {
		if n == name {
			return t, true
		}
	}
	return TierNew, false
}

// Requirement is the set of thresholds an agent must meet to hold a tier. A
// zero value for any field means the threshold does not apply.
type Requirement struct {
	MinJobs             int
	MinRating           float64
	MaxResponseTime     time.Duration
	MinCompletionRate   float64
	MinEarned           domain.Money
	RequireVerification bool
}

// Level pairs a tier with its requirement.
type Level struct {
	Tier        Tier
	Requirement Requirement
}

// DefaultLevels is the tier table in ascending order.
var DefaultLevels = []Level{
	{Tier: TierNew},
	{Tier: TierRising, Requirement: Requirement{
		MinJobs:           5,
		MinRating:         4.0,
		MaxResponseTime:   24 * time.Hour,
		MinCompletionRate: 0.80,
		MinEarned:         domain.MustParseMoney("50.00"),
	}},
	{Tier: TierEstablished, Requirement: Requirement{
		MinJobs:           25,
		MinRating:         4.3,
		MaxResponseTime:   12 * time.Hour,
		MinCompletionRate: 0.90,
		MinEarned:         domain.MustParseMoney("500.00"),
	}},
	{Tier: TierTrusted, Requirement: Requirement{
		MinJobs:           100,
		MinRating:         4.6,
		MaxResponseTime:   6 * time.Hour,
		MinCompletionRate: 0.95,
		MinEarned:         domain.MustParseMoney("5000.00"),
	}},
	{Tier: TierVerified, Requirement: Requirement{
		MinJobs:             250,
		MinRating:           4.8,
		MaxResponseTime:     2 * time.Hour,
		MinCompletionRate:   0.98,
		MinEarned:           domain.MustParseMoney("25000.00"),
		RequireVerification: true,
	}},
}
