package decision

import (
	"context"
	"math"

	"github.com/camuig/evo-trader/internal/market"
)

// NeutralSentiment is used when no sentiment source is wired or it fails.
const NeutralSentiment = 0.5

// SentimentSource scores news flow for an asset in [0,1].
type SentimentSource interface {
	Sentiment(ctx context.Context, assetID string) (float64, error)
}

// TechnicalConfig holds the step thresholds of the technical score.
type TechnicalConfig struct {
	HighVolume      float64 `yaml:"high_volume"`
	MediumVolume    float64 `yaml:"medium_volume"`
	HighLiquidity   float64 `yaml:"high_liquidity"`
	MediumLiquidity float64 `yaml:"medium_liquidity"`
	MomentumMin     float64 `yaml:"momentum_min"`
	MomentumMax     float64 `yaml:"momentum_max"`
}

func DefaultTechnicalConfig() TechnicalConfig {
	return TechnicalConfig{
		HighVolume:      1_000_000_000,
		MediumVolume:    100_000_000,
		HighLiquidity:   500_000_000,
		MediumLiquidity: 50_000_000,
		MomentumMin:     1,
		MomentumMax:     10,
	}
}

// TechnicalScore is a monotonic step function over volume, liquidity and momentum.
func TechnicalScore(s market.Snapshot, cfg TechnicalConfig) float64 {
	var score float64

	switch {
	case s.Volume24h >= cfg.HighVolume:
		score += 0.35
	case s.Volume24h >= cfg.MediumVolume:
		score += 0.2
	}

	switch {
	case s.Liquidity >= cfg.HighLiquidity:
		score += 0.3
	case s.Liquidity >= cfg.MediumLiquidity:
		score += 0.15
	}

	switch {
	case s.PriceChange24h > cfg.MomentumMax:
		// overextended
		score += 0.1
	case s.PriceChange24h >= cfg.MomentumMin:
		score += 0.25
	}

	if s.Trend == market.TrendBullish {
		score += 0.1
	}
	return math.Min(score, 1)
}

// CombineConfidence merges technical, sentiment and discovery signals.
// A non-positive discovery confidence means the discoverer had no opinion.
func CombineConfidence(technical, sentiment, discovery float64) float64 {
	if discovery <= 0 {
		return clamp01(0.6*technical + 0.4*sentiment)
	}
	return clamp01(0.5*technical + 0.3*sentiment + 0.2*discovery)
}

// blendMemory pulls confidence toward the historical success rate of similar trades.
func blendMemory(confidence, successRate, memoryWeight float64) float64 {
	return clamp01((1-memoryWeight)*confidence + memoryWeight*successRate)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
