package strategy

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Type string

const (
	TypeMomentum      Type = "momentum"
	TypeMeanReversion Type = "mean_reversion"
	TypeArbitrage     Type = "arbitrage"
	TypeSentiment     Type = "sentiment"
	TypeHybrid        Type = "hybrid"
)

var allTypes = []Type{TypeMomentum, TypeMeanReversion, TypeArbitrage, TypeSentiment, TypeHybrid}

// NeutralFitness is assigned to genes without trade history.
const NeutralFitness = 0.5

// ParamPositionScale is the fraction of available funds a gene proposes to commit.
const ParamPositionScale = "position_scale"

// TriggerPool is the fixed set of trigger conditions mutation can draw from.
var TriggerPool = []string{
	"volume_spike",
	"price_breakout",
	"oversold_bounce",
	"overbought_fade",
	"sentiment_positive",
	"sentiment_negative",
	"liquidity_surge",
	"trend_reversal",
	"trend_continuation",
	"low_volatility_squeeze",
}

var weightKeys = []string{"volume", "momentum", "sentiment", "liquidity"}

// Gene is one evolvable trading parameterization.
type Gene struct {
	ID         string             `json:"id"`
	Type       Type               `json:"type"`
	Parameters map[string]float64 `json:"parameters"`
	Weights    map[string]float64 `json:"weights"`
	Triggers   []string           `json:"triggers"`
	Fitness    float64            `json:"fitness"`
	Generation int                `json:"generation"`
	Parents    []string           `json:"parents"`
	TradeCount int                `json:"trade_count"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (g Gene) Clone() Gene {
	c := g
	c.Parameters = lo.Assign(g.Parameters)
	c.Weights = lo.Assign(g.Weights)
	c.Triggers = append([]string(nil), g.Triggers...)
	c.Parents = append([]string(nil), g.Parents...)
	return c
}

// PositionScale returns the gene's sizing parameter, defaulting to 0.5.
func (g Gene) PositionScale() float64 {
	if v, ok := g.Parameters[ParamPositionScale]; ok && v > 0 {
		return math.Min(v, 1)
	}
	return 0.5
}

func defaultParameters(t Type) map[string]float64 {
	switch t {
	case TypeMomentum:
		return map[string]float64{"lookback_hours": 24, "entry_threshold": 3, "exit_threshold": 5, ParamPositionScale: 0.5}
	case TypeMeanReversion:
		return map[string]float64{"lookback_hours": 72, "deviation": 2, "exit_threshold": 3, ParamPositionScale: 0.4}
	case TypeArbitrage:
		return map[string]float64{"spread_threshold": 0.5, "max_hold_hours": 6, ParamPositionScale: 0.3}
	case TypeSentiment:
		return map[string]float64{"sentiment_threshold": 0.6, "decay_hours": 12, ParamPositionScale: 0.4}
	default:
		return map[string]float64{"lookback_hours": 48, "entry_threshold": 2, "sentiment_threshold": 0.55, ParamPositionScale: 0.45}
	}
}

// newSeedGene builds a jittered gene of the given type.
func newSeedGene(t Type, rng *rand.Rand, now time.Time) Gene {
	params := defaultParameters(t)
	for _, k := range sortedKeys(params) {
		params[k] *= 0.9 + 0.2*rng.Float64()
	}

	weights := make(map[string]float64, len(weightKeys))
	for _, k := range weightKeys {
		weights[k] = 0.1 + rng.Float64()
	}
	normalizeWeights(weights)

	first := TriggerPool[rng.Intn(len(TriggerPool))]
	second := TriggerPool[rng.Intn(len(TriggerPool))]

	return Gene{
		ID:         newID(rng),
		Type:       t,
		Parameters: params,
		Weights:    weights,
		Triggers:   lo.Uniq([]string{first, second}),
		Fitness:    NeutralFitness,
		CreatedAt:  now,
	}
}

// newID draws the gene id from rng so seeded populations are fully reproducible.
func newID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// normalizeWeights rescales w in place so its values sum to 1.
func normalizeWeights(w map[string]float64) {
	if len(w) == 0 {
		return
	}
	var sum float64
	for k, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			w[k] = 0
			continue
		}
		sum += v
	}
	if sum <= 0 {
		even := 1 / float64(len(w))
		for k := range w {
			w[k] = even
		}
		return
	}
	for k := range w {
		w[k] /= sum
	}
}

// WeightSum is exported for invariant checks.
func WeightSum(w map[string]float64) float64 {
	return lo.Sum(lo.Values(w))
}

func sortedKeys(maps ...map[string]float64) []string {
	var keys []string
	for _, m := range maps {
		keys = append(keys, lo.Keys(m)...)
	}
	keys = lo.Uniq(keys)
	sort.Strings(keys)
	return keys
}
