package strategy

import (
	"math"
	"time"

	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
)

// FitnessConfig holds the hand-tuned coefficients of the per-trade score.
type FitnessConfig struct {
	ProfitScale     float64       `yaml:"profit_scale"`
	MaxLossScore    float64       `yaml:"max_loss_score"`
	MaxProfitScore  float64       `yaml:"max_profit_score"`
	RiskWeight      float64       `yaml:"risk_weight"`
	ExecutionWeight float64       `yaml:"execution_weight"`
	HalfLife        time.Duration `yaml:"half_life"`
	LiquidityFloor  float64       `yaml:"liquidity_floor"`
	VolumeFloor     float64       `yaml:"volume_floor"`
}

func DefaultFitnessConfig() FitnessConfig {
	return FitnessConfig{
		ProfitScale:     10,
		MaxLossScore:    -0.5,
		MaxProfitScore:  1.0,
		RiskWeight:      0.3,
		ExecutionWeight: 0.2,
		HalfLife:        30 * 24 * time.Hour,
		LiquidityFloor:  50_000_000,
		VolumeFloor:     100_000,
	}
}

// TradeScore rates a single finalized trade.
func TradeScore(m memory.TradeMemory, cfg FitnessConfig) float64 {
	pl := m.ProfitLoss / cfg.ProfitScale
	if pl > 0 {
		pl = math.Min(pl, cfg.MaxProfitScore)
	} else {
		pl = math.Max(pl, cfg.MaxLossScore)
	}
	return pl + cfg.RiskWeight*riskAdjustment(m) + cfg.ExecutionWeight*executionQuality(m, cfg)
}

// riskAdjustment rewards low risk and high confidence.
func riskAdjustment(m memory.TradeMemory) float64 {
	return 0.5*(1-m.RiskLevel.Score()) + 0.5*clamp01(m.Confidence)
}

func executionQuality(m memory.TradeMemory, cfg FitnessConfig) float64 {
	var q float64
	if m.Market.Liquidity >= cfg.LiquidityFloor {
		q += 0.4
	}
	if m.Market.Volume24h >= cfg.VolumeFloor {
		q += 0.3
	}
	switch {
	case m.Action == market.ActionBuy && m.Market.Trend == market.TrendBullish,
		m.Action == market.ActionSell && m.Market.Trend == market.TrendBearish:
		q += 0.3
	case m.Market.Trend == market.TrendNeutral:
		q += 0.15
	}
	return q
}

// Fitness is the recency-weighted mean trade score clamped to [0,1].
// Genes without finalized history get NeutralFitness.
func Fitness(history []memory.TradeMemory, cfg FitnessConfig, now time.Time) (float64, int) {
	var weighted, totalWeight float64
	var trades int
	for _, m := range history {
		if !m.Finalized() {
			continue
		}
		trades++
		w := 1.0
		if cfg.HalfLife > 0 {
			age := now.Sub(m.Timestamp)
			if age < 0 {
				age = 0
			}
			w = math.Pow(0.5, float64(age)/float64(cfg.HalfLife))
		}
		weighted += w * TradeScore(m, cfg)
		totalWeight += w
	}
	if trades == 0 || totalWeight == 0 {
		return NeutralFitness, 0
	}
	return clamp01(weighted / totalWeight), trades
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
