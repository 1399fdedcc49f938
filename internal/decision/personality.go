package decision

import (
	"math"

	"github.com/camuig/evo-trader/internal/memory"
)

// Personality biases how boldly the engine acts. Every field stays inside its Bounds.
type Personality struct {
	RiskTolerance       float64 `json:"risk_tolerance" yaml:"risk_tolerance"`
	Aggressiveness      float64 `json:"aggressiveness" yaml:"aggressiveness"`
	LearningRate        float64 `json:"learning_rate" yaml:"learning_rate"`
	MemoryWeight        float64 `json:"memory_weight" yaml:"memory_weight"`
	ExplorationRate     float64 `json:"exploration_rate" yaml:"exploration_rate"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

func DefaultPersonality() Personality {
	return Personality{
		RiskTolerance:       0.5,
		Aggressiveness:      0.5,
		LearningRate:        0.1,
		MemoryWeight:        0.5,
		ExplorationRate:     0.2,
		ConfidenceThreshold: 0.6,
	}
}

type Bound struct{ Min, Max float64 }

func (b Bound) clamp(v float64) float64 { return math.Max(b.Min, math.Min(b.Max, v)) }

// Bounds for each personality trait.
var (
	RiskToleranceBound       = Bound{0.1, 0.8}
	AggressivenessBound      = Bound{0.1, 0.8}
	LearningRateBound        = Bound{0.05, 0.5}
	MemoryWeightBound        = Bound{0.1, 0.9}
	ExplorationRateBound     = Bound{0.05, 0.5}
	ConfidenceThresholdBound = Bound{0.3, 0.9}
)

// Clamp forces every trait inside its bound.
func (p Personality) Clamp() Personality {
	return Personality{
		RiskTolerance:       RiskToleranceBound.clamp(p.RiskTolerance),
		Aggressiveness:      AggressivenessBound.clamp(p.Aggressiveness),
		LearningRate:        LearningRateBound.clamp(p.LearningRate),
		MemoryWeight:        MemoryWeightBound.clamp(p.MemoryWeight),
		ExplorationRate:     ExplorationRateBound.clamp(p.ExplorationRate),
		ConfidenceThreshold: ConfidenceThresholdBound.clamp(p.ConfidenceThreshold),
	}
}

// RequiredConfidence is the floor a proposal must reach to be acted on.
func (p Personality) RequiredConfidence() float64 {
	return p.ConfidenceThreshold * (1 - p.Aggressiveness*0.3)
}

// EvolutionConfig controls when and how far the personality moves.
type EvolutionConfig struct {
	MinMemories  int     `yaml:"min_memories"`
	Window       int     `yaml:"window"`
	Step         float64 `yaml:"step"`
	VolatilityLo float64 `yaml:"volatility_low"`
	VolatilityHi float64 `yaml:"volatility_high"`
}

func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		MinMemories:  10,
		Window:       20,
		Step:         0.05,
		VolatilityLo: 5,
		VolatilityHi: 15,
	}
}

// PerformanceStats summarizes a window of finalized trades.
type PerformanceStats struct {
	Trades      int     `json:"trades"`
	SuccessRate float64 `json:"success_rate"`
	AvgReturn   float64 `json:"avg_return"`
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
}

func computeStats(memories []memory.TradeMemory) PerformanceStats {
	s := PerformanceStats{Trades: len(memories)}
	if s.Trades == 0 {
		return s
	}
	var wins int
	var sum float64
	for _, m := range memories {
		if m.Profitable() {
			wins++
		}
		sum += m.ProfitLoss
	}
	n := float64(s.Trades)
	s.SuccessRate = float64(wins) / n
	s.AvgReturn = sum / n

	var sq float64
	for _, m := range memories {
		d := m.ProfitLoss - s.AvgReturn
		sq += d * d
	}
	s.Volatility = math.Sqrt(sq / n)
	s.Sharpe = s.AvgReturn / math.Max(s.Volatility, 1)
	return s
}

// evolve applies one bounded adjustment step. populationSize feeds the
// exploration rule.
func evolve(p Personality, s PerformanceStats, populationSize int, cfg EvolutionConfig) Personality {
	step := cfg.Step
	next := p

	switch {
	case s.SuccessRate > 0.7 && s.AvgReturn > 5 && s.Sharpe > 1:
		next.RiskTolerance += step
		next.Aggressiveness += step
	case s.SuccessRate < 0.4 || s.AvgReturn < -5 || s.Sharpe < -0.5:
		next.RiskTolerance -= step
		next.Aggressiveness -= step
	}

	switch {
	case s.Volatility < cfg.VolatilityLo:
		next.LearningRate += step
	case s.Volatility > cfg.VolatilityHi:
		next.LearningRate -= step
	}

	switch {
	case populationSize < 5 || s.SuccessRate < 0.5:
		next.ExplorationRate += step
	case s.SuccessRate > 0.65:
		next.ExplorationRate -= step
	}

	switch {
	case s.SuccessRate > 0.7:
		next.ConfidenceThreshold -= step
	case s.SuccessRate < 0.5:
		next.ConfidenceThreshold += step
	}

	// Lean on memory more when it has been right, less when it has not.
	switch {
	case s.SuccessRate > 0.6:
		next.MemoryWeight += step
	case s.SuccessRate < 0.4:
		next.MemoryWeight -= step
	}

	return next.Clamp()
}
