package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/camuig/evo-trader/internal/market"
)

func TestVolumeClosenessIsSymmetric(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"equal", 100, 100, 1},
		{"double", 100, 200, 0.5},
		{"half", 200, 100, 0.5},
		{"both zero", 0, 0, 1},
		{"one zero", 0, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := volumeCloseness(tt.a, tt.b); got != tt.want {
				t.Errorf("volumeCloseness(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarityComponents(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultSimilarityConfig()
	snap := market.Snapshot{AssetID: "SBER", Volume24h: 1000, PriceChange24h: 5}

	same := TradeMemory{AssetID: "SBER", Timestamp: now, Market: Conditions{Volume24h: 1000, PriceChange24h: 5}}
	got := Similarity(same, snap, cfg, now)
	want := 0.3 + 0.4 + 0.5 + 0.2
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("identical memory score = %v, want %v", got, want)
	}

	far := TradeMemory{AssetID: "GAZP", Timestamp: now.Add(-365 * 24 * time.Hour), Market: Conditions{Volume24h: 10, PriceChange24h: 150}}
	if s := Similarity(far, snap, cfg, now); s > 0.01 {
		t.Fatalf("distant memory score = %v, want ~0", s)
	}
}

func TestFindSimilarFiltersAndLimits(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultSimilarityConfig()
	snap := market.Snapshot{AssetID: "SBER", Volume24h: 1000, PriceChange24h: 2}

	var memories []TradeMemory
	for i := 0; i < 8; i++ {
		memories = append(memories, TradeMemory{
			ID:        fmt.Sprintf("m%d", i),
			AssetID:   "SBER",
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Market:    Conditions{Volume24h: 1000, PriceChange24h: 2},
		})
	}
	memories = append(memories, TradeMemory{ID: "noise", AssetID: "X", Timestamp: now.AddDate(-1, 0, 0), Market: Conditions{Volume24h: 1, PriceChange24h: -200}})

	matches := FindSimilar(memories, snap, cfg, now)
	if len(matches) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(matches))
	}
	if matches[0].Memory.ID != "m0" {
		t.Errorf("expected newest memory first on tie, got %s", matches[0].Memory.ID)
	}
	for _, m := range matches {
		if m.Memory.ID == "noise" {
			t.Errorf("low-score memory should be filtered")
		}
		if m.Score <= cfg.MinScore {
			t.Errorf("match score %v not above threshold", m.Score)
		}
	}
}

func TestSuccessRateIgnoresPending(t *testing.T) {
	matches := []Match{
		{Memory: TradeMemory{Outcome: OutcomeProfit}, Score: 1},
		{Memory: TradeMemory{Outcome: OutcomeLoss}, Score: 1},
		{Memory: TradeMemory{Outcome: OutcomePending}, Score: 5},
	}
	rate, ok := SuccessRate(matches)
	if !ok || rate != 0.5 {
		t.Fatalf("SuccessRate = %v, %v; want 0.5, true", rate, ok)
	}

	if _, ok := SuccessRate([]Match{{Memory: TradeMemory{Outcome: OutcomePending}, Score: 1}}); ok {
		t.Fatalf("pending-only matches should report ok=false")
	}
}

type sliceStore struct {
	items []TradeMemory
}

func (s *sliceStore) Store(_ context.Context, m TradeMemory) (string, error) {
	s.items = append(s.items, m)
	return m.ID, nil
}

func (s *sliceStore) FetchAll(context.Context) ([]string, error) {
	ids := make([]string, len(s.items))
	for i, m := range s.items {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *sliceStore) Fetch(_ context.Context, id string) (*TradeMemory, error) {
	for _, m := range s.items {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *sliceStore) Query(_ context.Context, f Filter) ([]TradeMemory, error) {
	var out []TradeMemory
	for _, m := range s.items {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *sliceStore) Finalize(context.Context, string, Finalization) error { return nil }

func TestCacheLoadAndQueries(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &sliceStore{items: []TradeMemory{
		{ID: "a", Timestamp: base, StrategyID: "g1", Outcome: OutcomeProfit},
		{ID: "b", Timestamp: base.Add(time.Hour), StrategyID: "g1", Outcome: OutcomePending},
		{ID: "c", Timestamp: base.Add(2 * time.Hour), StrategyID: "g2", Outcome: OutcomeLoss},
	}}

	cache := NewCache()
	n, err := cache.Load(context.Background(), store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 3 || cache.Len() != 3 {
		t.Fatalf("expected 3 loaded memories, got %d/%d", n, cache.Len())
	}
	if got := len(cache.Finalized()); got != 2 {
		t.Errorf("expected 2 finalized, got %d", got)
	}
	if got := cache.ByStrategy("g1"); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("ByStrategy(g1) = %+v", got)
	}
	if got := cache.Recent(1); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

func TestApplyFinalizesOnce(t *testing.T) {
	m := TradeMemory{ID: "x", Outcome: OutcomePending}
	done, err := m.Apply(Finalization{ExitPrice: 110, Outcome: OutcomeProfit, ProfitLoss: 10, Lessons: []string{"ok"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if done.ExitPrice == nil || *done.ExitPrice != 110 || done.Outcome != OutcomeProfit {
		t.Fatalf("unexpected finalized memory: %+v", done)
	}
	if _, err := done.Apply(Finalization{Outcome: OutcomeLoss}); err != ErrAlreadyFinalized {
		t.Fatalf("second Apply error = %v, want ErrAlreadyFinalized", err)
	}
}
