package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/scheduler"
	"github.com/camuig/evo-trader/internal/strategy"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, asset := range []string{"SBER", "GAZP", "SBER"} {
		_, err := repo.Store(ctx, memory.TradeMemory{
			ID:         "m" + string(rune('1'+i)),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			AssetID:    asset,
			Action:     market.ActionBuy,
			Amount:     100,
			EntryPrice: 250,
			Outcome:    memory.OutcomePending,
			Confidence: 0.7,
			StrategyID: "g1",
			RiskLevel:  market.RiskMedium,
			Market:     memory.Conditions{Volume24h: 1e9, Trend: market.TrendBullish},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	ids, err := repo.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "m1" || ids[2] != "m3" {
		t.Fatalf("ids = %v", ids)
	}

	got, err := repo.Query(ctx, memory.Filter{AssetID: "SBER"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m3" {
		t.Fatalf("query = %+v", got)
	}
	if got[0].Market.Trend != market.TrendBullish || got[0].Market.Volume24h != 1e9 {
		t.Fatalf("conditions lost: %+v", got[0].Market)
	}

	newest, err := repo.Query(ctx, memory.Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 1 || newest[0].ID != "m3" {
		t.Fatalf("limit query = %+v", newest)
	}

	fin := memory.Finalization{ExitPrice: 260, Outcome: memory.OutcomeProfit, ProfitLoss: 4, Lessons: []string{"trend held"}}
	if err := repo.Finalize(ctx, "m1", fin); err != nil {
		t.Fatal(err)
	}
	if err := repo.Finalize(ctx, "m1", fin); !errors.Is(err, memory.ErrAlreadyFinalized) {
		t.Fatalf("second finalize err = %v", err)
	}
	if err := repo.Finalize(ctx, "missing", fin); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("missing finalize err = %v", err)
	}

	m, err := repo.Fetch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Outcome != memory.OutcomeProfit || m.ExitPrice == nil || *m.ExitPrice != 260 || len(m.Lessons) != 1 {
		t.Fatalf("finalized memory = %+v", m)
	}
	if _, err := repo.Fetch(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("fetch missing err = %v", err)
	}
}

func TestCacheLoadsFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.Store(ctx, memory.TradeMemory{AssetID: "LKOH", Action: market.ActionBuy, Outcome: memory.OutcomeLoss, Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	cache := memory.NewCache()
	n, err := cache.Load(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || cache.Len() != 1 {
		t.Fatalf("loaded %d, cache has %d", n, cache.Len())
	}
}

func TestGenesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	genes, state, err := repo.LoadGenes(ctx)
	if err != nil || genes != nil || state != nil {
		t.Fatalf("cold start = %v %v %v", genes, state, err)
	}

	in := []strategy.Gene{
		{ID: "b", Type: strategy.TypeMomentum, Parameters: map[string]float64{"lookback": 12}, Weights: map[string]float64{"volume": 1}, Triggers: []string{"volume_spike"}, Fitness: 0.8, Generation: 3, Parents: []string{"x", "y"}},
		{ID: "a", Type: strategy.TypeMeanReversion, Parameters: map[string]float64{"lookback": 20}, Fitness: 0.4, Generation: 2},
	}
	summary := strategy.Summary{Generation: 3, Size: 2, MutationRate: 0.15, AvgFitness: 0.6, BestFitness: 0.8}
	if err := repo.SaveGenes(ctx, in, summary); err != nil {
		t.Fatal(err)
	}
	// a second save replaces the first
	if err := repo.SaveGenes(ctx, in, summary); err != nil {
		t.Fatal(err)
	}

	genes, state, err = repo.LoadGenes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(genes) != 2 || genes[0].ID != "b" || genes[1].ID != "a" {
		t.Fatalf("genes = %+v", genes)
	}
	if genes[0].Parameters["lookback"] != 12 || genes[0].Triggers[0] != "volume_spike" || len(genes[0].Parents) != 2 {
		t.Fatalf("gene fields lost: %+v", genes[0])
	}
	if state == nil || state.Generation != 3 || state.MutationRate != 0.15 {
		t.Fatalf("state = %+v", state)
	}
}

func TestPersonalityAndCycles(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if p, err := repo.LatestPersonality(ctx); err != nil || p != nil {
		t.Fatalf("cold start personality = %v, %v", p, err)
	}
	want := decision.DefaultPersonality()
	want.RiskTolerance = 0.35
	if err := repo.SavePersonality(ctx, want, decision.PerformanceStats{Trades: 12}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.LatestPersonality(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != want {
		t.Fatalf("personality = %+v, want %+v", got, want)
	}

	if res, err := repo.LatestCycle(ctx); err != nil || res != nil {
		t.Fatalf("cold start cycle = %v, %v", res, err)
	}
	res := scheduler.CycleResult{
		ID:        "c1",
		StartedAt: time.Now(),
		Executed:  1,
		Errors:    []string{"GAZP: timeout"},
		Trades: []scheduler.TradeEvent{
			{AssetID: "SBER", Action: market.ActionSell, Amount: 520, Price: 260, PnL: 20, PnLPercent: 4},
		},
	}
	if err := repo.SaveCycle(ctx, res); err != nil {
		t.Fatal(err)
	}

	latest, err := repo.LatestCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != "c1" || len(latest.Errors) != 1 {
		t.Fatalf("latest = %+v", latest)
	}
	trades, err := repo.GetRecentTrades(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].CycleID != "c1" || trades[0].PnL != 20 {
		t.Fatalf("trades = %+v", trades)
	}
	pnl, err := repo.GetTodayPnL(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pnl != 20 {
		t.Fatalf("today pnl = %v", pnl)
	}
}

func TestPortfolioSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	pr := risk.PortfolioRisk{Level: market.RiskLow, LastKnownBalance: 10000, TotalExposure: 1500, ExposurePercent: 15}
	positions := []risk.Position{{AssetID: "SBER", Amount: 1500, EntryPrice: 250}}
	if err := repo.SavePortfolioSnapshot(ctx, pr, positions); err != nil {
		t.Fatal(err)
	}
	snap, err := repo.GetLatestSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Balance != 10000 || snap.PositionsCount != 1 || snap.RiskLevel != "LOW" {
		t.Fatalf("snapshot = %+v", snap)
	}

	restored, err := repo.LatestPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 1 || restored[0].AssetID != "SBER" || restored[0].EntryPrice != 250 {
		t.Fatalf("positions = %+v", restored)
	}
}

func TestLatestPositionsColdStart(t *testing.T) {
	positions, err := newTestRepo(t).LatestPositions(context.Background())
	if err != nil || positions != nil {
		t.Fatalf("positions = %v, err = %v", positions, err)
	}
}
