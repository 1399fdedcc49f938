package strategy

import (
	"fmt"
	"slices"

	"github.com/camuig/evo-trader/internal/market"
)

// Range is an inclusive numeric interval; a nil bound is open.
type Range struct {
	Min *float64 `yaml:"min" json:"min,omitempty"`
	Max *float64 `yaml:"max" json:"max,omitempty"`
}

func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func Between(low, high float64) Range { return Range{Min: &low, Max: &high} }
func AtLeast(low float64) Range        { return Range{Min: &low} }
func AtMost(high float64) Range        { return Range{Max: &high} }

// Regime is a named bucket of market conditions.
type Regime struct {
	Name        string         `yaml:"name" json:"name"`
	Volatility  Range          `yaml:"volatility" json:"volatility"`
	Volume      Range          `yaml:"volume" json:"volume"`
	PriceChange Range          `yaml:"price_change" json:"price_change"`
	Trends      []market.Trend `yaml:"trends" json:"trends,omitempty"`
	Strategies  []Type         `yaml:"strategies" json:"strategies"`
}

func (r Regime) Matches(s market.Snapshot) bool {
	if !r.Volatility.Contains(s.Volatility) {
		return false
	}
	if !r.Volume.Contains(s.Volume24h) {
		return false
	}
	if !r.PriceChange.Contains(s.PriceChange24h) {
		return false
	}
	if len(r.Trends) > 0 && !slices.Contains(r.Trends, s.Trend) {
		return false
	}
	return true
}

// DefaultRegimes is checked in order; the first match wins.
func DefaultRegimes() []Regime {
	return []Regime{
		{
			Name:       "high_volatility",
			Volatility: AtLeast(5),
			Strategies: []Type{TypeArbitrage, TypeMeanReversion},
		},
		{
			Name:        "bull",
			PriceChange: AtLeast(2),
			Trends:      []market.Trend{market.TrendBullish},
			Strategies:  []Type{TypeMomentum, TypeSentiment, TypeHybrid},
		},
		{
			Name:        "bear",
			PriceChange: AtMost(-2),
			Trends:      []market.Trend{market.TrendBearish},
			Strategies:  []Type{TypeMeanReversion, TypeSentiment},
		},
		{
			Name:        "sideways",
			PriceChange: Between(-2, 2),
			Strategies:  []Type{TypeMeanReversion, TypeArbitrage, TypeHybrid},
		},
	}
}

func validateRegimes(regimes []Regime) error {
	seen := make(map[string]bool, len(regimes))
	for i, r := range regimes {
		if r.Name == "" {
			return fmt.Errorf("regime %d: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("regime %q defined twice", r.Name)
		}
		seen[r.Name] = true
		for _, t := range r.Strategies {
			if !slices.Contains(allTypes, t) {
				return fmt.Errorf("regime %q: unknown strategy type %q", r.Name, t)
			}
		}
	}
	return nil
}
