package memory

import (
	"math"
	"sort"
	"time"

	"github.com/camuig/evo-trader/internal/market"
)

// SimilarityConfig weighs the components of the similarity score.
type SimilarityConfig struct {
	VolumeWeight      float64       `yaml:"volume_weight"`
	PriceChangeWeight float64       `yaml:"price_change_weight"`
	SameAssetBonus    float64       `yaml:"same_asset_bonus"`
	RecencyWeight     float64       `yaml:"recency_weight"`
	RecencyWindow     time.Duration `yaml:"recency_window"`
	PriceChangeSpan   float64       `yaml:"price_change_span"`
	MinScore          float64       `yaml:"min_score"`
	Limit             int           `yaml:"limit"`
}

func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		VolumeWeight:      0.3,
		PriceChangeWeight: 0.4,
		SameAssetBonus:    0.5,
		RecencyWeight:     0.2,
		RecencyWindow:     30 * 24 * time.Hour,
		PriceChangeSpan:   100,
		MinScore:          0.3,
		Limit:             5,
	}
}

type Match struct {
	Memory TradeMemory `json:"memory"`
	Score  float64     `json:"score"`
}

// Similarity scores how close a past trade's market picture is to the current snapshot.
func Similarity(m TradeMemory, snap market.Snapshot, cfg SimilarityConfig, now time.Time) float64 {
	score := cfg.VolumeWeight * volumeCloseness(m.Market.Volume24h, snap.Volume24h)

	if cfg.PriceChangeSpan > 0 {
		diff := math.Abs(m.Market.PriceChange24h - snap.PriceChange24h)
		score += cfg.PriceChangeWeight * math.Max(0, 1-diff/cfg.PriceChangeSpan)
	}

	if m.AssetID == snap.AssetID {
		score += cfg.SameAssetBonus
	}

	if cfg.RecencyWindow > 0 {
		age := now.Sub(m.Timestamp)
		if age < 0 {
			age = 0
		}
		score += cfg.RecencyWeight * math.Exp(-float64(age)/float64(cfg.RecencyWindow))
	}

	return score
}

// volumeCloseness is min/max so a 2x difference in either direction scores the same.
func volumeCloseness(a, b float64) float64 {
	low, high := math.Min(a, b), math.Max(a, b)
	if high <= 0 {
		if low == high {
			return 1
		}
		return 0
	}
	if low < 0 {
		return 0
	}
	return low / high
}

// FindSimilar returns the best matching memories above the score threshold,
// ordered by score then recency.
func FindSimilar(memories []TradeMemory, snap market.Snapshot, cfg SimilarityConfig, now time.Time) []Match {
	matches := make([]Match, 0, len(memories))
	for _, m := range memories {
		score := Similarity(m, snap, cfg, now)
		if score > cfg.MinScore {
			matches = append(matches, Match{Memory: m, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Memory.Timestamp.After(matches[j].Memory.Timestamp)
	})

	if cfg.Limit > 0 && len(matches) > cfg.Limit {
		matches = matches[:cfg.Limit]
	}
	return matches
}

// SuccessRate is the score-weighted share of profitable finalized matches.
// ok is false when none of the matches is finalized.
func SuccessRate(matches []Match) (rate float64, ok bool) {
	var won, total float64
	for _, m := range matches {
		if !m.Memory.Finalized() {
			continue
		}
		total += m.Score
		if m.Memory.Profitable() {
			won += m.Score
		}
	}
	if total == 0 {
		return 0, false
	}
	return won / total, true
}
