package gamemath

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultTargetProbability is the win chance RecommendedSpins aims for by default.
const DefaultTargetProbability = 0.8

// ItemInput is what Analyze needs to know about one catalog entry.
type ItemInput struct {
	Name   string
	Value  uint64
	Weight uint32
}

// ItemAnalysis describes the economics of chasing one item with repeated spins.
// Expectation fields are zero when the item cannot be won.
type ItemAnalysis struct {
	Name             string          `json:"name"`
	Value            uint64          `json:"value"`
	ProbabilityBP    uint32          `json:"probability_bp"`
	ProbabilityPct   decimal.Decimal `json:"probability_pct"`
	Winnable         bool            `json:"winnable"`
	ExpectedSpins    float64         `json:"expected_spins"`
	ExpectedCost     float64         `json:"expected_cost"`
	Profit           float64         `json:"profit"`
	ProfitRatio      float64         `json:"profit_ratio"`
	RecommendedSpins int             `json:"recommended_spins,omitempty"`
}

// Analyze computes expected spins, expected cost and operator profit for
// each item at the given ticket price.
func Analyze(items []ItemInput, ticketPrice uint64) []ItemAnalysis {
	out := make([]ItemAnalysis, 0, len(items))
	price := float64(ticketPrice)
	for _, it := range items {
		a := ItemAnalysis{
			Name:           it.Name,
			Value:          it.Value,
			ProbabilityBP:  it.Weight,
			ProbabilityPct: Percent(it.Weight),
		}
		p := Probability(it.Weight)
		if p > 0 && price > 0 {
			a.Winnable = true
			a.ExpectedSpins = 1 / p
			a.ExpectedCost = a.ExpectedSpins * price
			a.Profit = float64(it.Value) - a.ExpectedCost
			a.ProfitRatio = a.Profit / a.ExpectedCost
			if k, ok := RecommendedSpins(p, DefaultTargetProbability, 1000); ok {
				a.RecommendedSpins = k
			}
		}
		out = append(out, a)
	}
	return out
}

// Probability converts basis points to a fraction.
func Probability(bp uint32) float64 {
	return float64(bp) / TotalBP
}

// Percent renders basis points as an exact percentage (250 -> 2.50).
func Percent(bp uint32) decimal.Decimal {
	return decimal.New(int64(bp), -2)
}

// ProbabilityInSpins is the chance of at least one win in spins attempts.
func ProbabilityInSpins(p float64, spins int) float64 {
	if spins <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	return 1 - math.Pow(1-p, float64(spins))
}

// RecommendedSpins returns the smallest spin count whose cumulative win
// probability reaches target, searching up to max spins.
func RecommendedSpins(p, target float64, max int) (int, bool) {
	if p <= 0 || target <= 0 {
		return 0, false
	}
	for k := 1; k <= max; k++ {
		if ProbabilityInSpins(p, k) >= target {
			return k, true
		}
	}
	return 0, false
}
