package strategy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
)

type historyMap map[string][]memory.TradeMemory

func (h historyMap) ByStrategy(id string) []memory.TradeMemory { return h[id] }

func newTestPopulation(seed int64, history History) *Population {
	return NewPopulation(DefaultConfig(), history, rand.New(rand.NewSource(seed)), logger.Discard())
}

func assertWeightsNormalized(t *testing.T, genes []Gene) {
	t.Helper()
	for _, g := range genes {
		if sum := WeightSum(g.Weights); math.Abs(sum-1) > 1e-9 {
			t.Fatalf("gene %s weights sum to %v", g.ID, sum)
		}
	}
}

func TestNewPopulationSeedsAllTypes(t *testing.T) {
	p := newTestPopulation(1, nil)
	genes := p.Genes()
	if len(genes) != 20 {
		t.Fatalf("size = %d, want 20", len(genes))
	}
	seen := map[Type]int{}
	for _, g := range genes {
		seen[g.Type]++
		if g.Fitness != NeutralFitness {
			t.Errorf("seed gene fitness = %v, want neutral", g.Fitness)
		}
	}
	for _, typ := range allTypes {
		if seen[typ] != 4 {
			t.Errorf("type %s seeded %d times, want 4", typ, seen[typ])
		}
	}
	assertWeightsNormalized(t, genes)
}

func TestEvolveKeepsWeightsNormalizedAndSize(t *testing.T) {
	p := newTestPopulation(7, nil)
	p.cfg.MutationRate = 1
	p.mutationRate = 1
	p.cfg.TriggerChance = 1

	for i := 0; i < 10; i++ {
		m := p.EvolveStrategies()
		if m.Generation != i+1 {
			t.Fatalf("generation = %d, want %d", m.Generation, i+1)
		}
		genes := p.Genes()
		if len(genes) != p.cfg.Size {
			t.Fatalf("size after evolve = %d", len(genes))
		}
		assertWeightsNormalized(t, genes)
		for _, g := range genes {
			if len(g.Triggers) == 0 {
				t.Fatalf("gene %s lost all triggers", g.ID)
			}
			if len(g.Parents) > 2 {
				t.Fatalf("gene %s has %d parents", g.ID, len(g.Parents))
			}
		}
	}
}

func TestEvolvePreservesElite(t *testing.T) {
	now := time.Now()
	p := newTestPopulation(3, nil)
	genes := p.Genes()

	history := historyMap{}
	winner := genes[5].ID
	for i := 0; i < 3; i++ {
		history[winner] = append(history[winner], memory.TradeMemory{
			Timestamp:  now,
			Action:     market.ActionBuy,
			Outcome:    memory.OutcomeProfit,
			ProfitLoss: 12,
			Confidence: 0.9,
			RiskLevel:  market.RiskLow,
			Market:     memory.Conditions{Liquidity: 1e9, Volume24h: 1e6, Trend: market.TrendBullish},
		})
	}
	p.history = history

	p.EvolveStrategies()

	best, ok := p.Get(winner)
	if !ok {
		t.Fatal("best gene did not survive evolution")
	}
	if best.Fitness != 1 {
		t.Fatalf("elite fitness = %v, want 1", best.Fitness)
	}
	if best.Generation != 0 {
		t.Fatalf("elite generation changed to %d", best.Generation)
	}
}

func TestEvolveIsReproducibleWithSeed(t *testing.T) {
	a := newTestPopulation(42, nil)
	b := newTestPopulation(42, nil)
	fixed := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	a.now, b.now = fixed, fixed

	for i := 0; i < 3; i++ {
		a.EvolveStrategies()
		b.EvolveStrategies()
	}

	ga, gb := a.Genes(), b.Genes()
	for i := range ga {
		if ga[i].ID != gb[i].ID || ga[i].Type != gb[i].Type {
			t.Fatalf("gene %d differs: %s/%s vs %s/%s", i, ga[i].ID, ga[i].Type, gb[i].ID, gb[i].Type)
		}
		for k, v := range ga[i].Parameters {
			if gb[i].Parameters[k] != v {
				t.Fatalf("gene %d param %s differs", i, k)
			}
		}
	}
}

func TestEvolveRetiresPoorGenes(t *testing.T) {
	now := time.Now()
	p := newTestPopulation(5, nil)
	loser := p.Genes()[0].ID

	history := historyMap{}
	for i := 0; i < 6; i++ {
		history[loser] = append(history[loser], memory.TradeMemory{
			Timestamp:  now,
			Action:     market.ActionBuy,
			Outcome:    memory.OutcomeLoss,
			ProfitLoss: -20,
			Confidence: 0.1,
			RiskLevel:  market.RiskCritical,
			Market:     memory.Conditions{Trend: market.TrendBearish},
		})
	}
	p.history = history

	m := p.EvolveStrategies()
	if m.Retired != 1 {
		t.Fatalf("retired = %d, want 1", m.Retired)
	}
	if _, ok := p.Get(loser); ok {
		t.Fatal("retired gene still in population")
	}
	if p.Size() != 20 {
		t.Fatalf("size = %d, want 20", p.Size())
	}
}

func TestUntestedGenesKeepNeutralFitness(t *testing.T) {
	p := newTestPopulation(9, historyMap{})
	p.EvolveStrategies()
	for _, g := range p.Genes() {
		if g.Fitness != NeutralFitness {
			t.Fatalf("gene %s fitness = %v, want %v", g.ID, g.Fitness, NeutralFitness)
		}
	}
}

func TestFitnessRecencyWeighting(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultFitnessConfig()

	win := memory.TradeMemory{Timestamp: now, Action: market.ActionBuy, Outcome: memory.OutcomeProfit, ProfitLoss: 10, Confidence: 1, RiskLevel: market.RiskLow}
	oldLoss := memory.TradeMemory{Timestamp: now.Add(-90 * 24 * time.Hour), Action: market.ActionBuy, Outcome: memory.OutcomeLoss, ProfitLoss: -10, RiskLevel: market.RiskHigh}
	pending := memory.TradeMemory{Timestamp: now, Outcome: memory.OutcomePending}

	got, trades := Fitness([]memory.TradeMemory{win, oldLoss, pending}, cfg, now)
	if trades != 2 {
		t.Fatalf("trades = %d, want 2", trades)
	}
	if got <= 0.5 {
		t.Fatalf("recent win should dominate old loss, fitness = %v", got)
	}

	if f, n := Fitness(nil, cfg, now); f != NeutralFitness || n != 0 {
		t.Fatalf("empty history = (%v, %d)", f, n)
	}
}

func TestDetectMarketRegimeFirstMatchWins(t *testing.T) {
	p := newTestPopulation(1, nil)
	tests := []struct {
		name string
		snap market.Snapshot
		want string
	}{
		{"volatile bull goes high volatility", market.Snapshot{Volatility: 8, PriceChange24h: 6, Trend: market.TrendBullish}, "high_volatility"},
		{"bull", market.Snapshot{Volatility: 1, PriceChange24h: 3, Trend: market.TrendBullish}, "bull"},
		{"bear", market.Snapshot{Volatility: 1, PriceChange24h: -4, Trend: market.TrendBearish}, "bear"},
		{"sideways", market.Snapshot{Volatility: 1, PriceChange24h: 0.5, Trend: market.TrendNeutral}, "sideways"},
		{"boundary change belongs to bull", market.Snapshot{Volatility: 1, PriceChange24h: 2, Trend: market.TrendBullish}, "bull"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := p.DetectMarketRegime(tt.snap)
			if !ok {
				t.Fatal("no regime detected")
			}
			if r.Name != tt.want {
				t.Fatalf("regime = %s, want %s", r.Name, tt.want)
			}
		})
	}

	if _, ok := p.DetectMarketRegime(market.Snapshot{Volatility: 1, PriceChange24h: 4, Trend: market.TrendBearish}); ok {
		t.Fatal("rising bearish snapshot should match no regime")
	}
}

func TestBestForRegimePrefersRegimeTypes(t *testing.T) {
	p := newTestPopulation(11, nil)
	regime := &Regime{Name: "bear", Strategies: []Type{TypeMeanReversion, TypeSentiment}}

	best := p.BestForRegime(regime, 3)
	if len(best) != 3 {
		t.Fatalf("got %d genes, want 3", len(best))
	}
	for _, g := range best {
		if g.Type != TypeMeanReversion && g.Type != TypeSentiment {
			t.Fatalf("unexpected type %s", g.Type)
		}
	}

	if all := p.BestForRegime(nil, 0); len(all) != 20 {
		t.Fatalf("nil regime returned %d genes", len(all))
	}
}

func TestDiversity(t *testing.T) {
	a := Gene{Type: TypeMomentum, Parameters: map[string]float64{"x": 1}, Weights: map[string]float64{"v": 1}}
	if d := Diversity([]Gene{a, a.Clone()}); d != 0 {
		t.Fatalf("identical genes diversity = %v", d)
	}
	b := a.Clone()
	b.Type = TypeArbitrage
	if d := Diversity([]Gene{a, b}); d != 0.5 {
		t.Fatalf("type-only mismatch diversity = %v, want 0.5", d)
	}
}

func TestMutationRateSelfTunes(t *testing.T) {
	p := newTestPopulation(1, nil)
	start := p.mutationRate
	p.tuneMutationRate(0.1)
	if p.mutationRate <= start {
		t.Fatalf("low diversity should raise mutation rate, got %v", p.mutationRate)
	}
	p.mutationRate = start
	p.tuneMutationRate(0.9)
	if p.mutationRate >= start {
		t.Fatalf("high diversity should lower mutation rate, got %v", p.mutationRate)
	}
}
