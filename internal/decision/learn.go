package decision

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/memory"
)

// Entry describes a freshly executed trade whose outcome is not known yet.
type Entry struct {
	Decision   Decision
	Snapshot   market.Snapshot
	Amount     float64
	EntryPrice float64
}

// TradeOutcome is a completed round trip. PendingID links it to the memory
// written at entry time, if any.
type TradeOutcome struct {
	AssetID    string
	Action     market.Action
	Amount     float64
	EntryPrice float64
	ExitPrice  float64
	Snapshot   market.Snapshot
	StrategyID string
	Confidence float64
	RiskLevel  market.RiskLevel
	PendingID  string
}

// RecordEntry persists a PENDING memory for an executed trade.
func (e *Engine) RecordEntry(ctx context.Context, entry Entry) (string, error) {
	m := memory.TradeMemory{
		Timestamp:  e.now(),
		AssetID:    entry.Decision.AssetID,
		Action:     entry.Decision.Action,
		Amount:     entry.Amount,
		EntryPrice: entry.EntryPrice,
		Outcome:    memory.OutcomePending,
		Confidence: entry.Decision.Confidence,
		StrategyID: entry.Decision.StrategyID,
		RiskLevel:  entry.Decision.RiskLevel,
		Market:     memory.ConditionsFrom(entry.Snapshot),
	}
	id, err := e.storeMemory(ctx, m)
	if err != nil {
		return "", fmt.Errorf("record entry %s: %w", m.AssetID, err)
	}
	return id, nil
}

// LearnFromTrade finalizes a trade into memory and refreshes the fitness of
// the strategy that produced it.
func (e *Engine) LearnFromTrade(ctx context.Context, o TradeOutcome) (*memory.TradeMemory, error) {
	outcome, pl := evaluate(o.Action, o.EntryPrice, o.ExitPrice)
	lessons := deriveLessons(o, outcome, pl)
	exit := o.ExitPrice

	var result memory.TradeMemory
	if o.PendingID != "" {
		fin := memory.Finalization{ExitPrice: exit, Outcome: outcome, ProfitLoss: pl, Lessons: lessons}
		m, err := e.finalize(ctx, o.PendingID, fin)
		if err == nil {
			result = m
		} else if !errors.Is(err, memory.ErrNotFound) {
			return nil, fmt.Errorf("learn from %s: %w", o.AssetID, err)
		} else {
			e.logger.Warn("pending memory missing, storing new record", "id", o.PendingID, "asset", o.AssetID)
		}
	}

	if result.ID == "" {
		m := memory.TradeMemory{
			Timestamp:  e.now(),
			AssetID:    o.AssetID,
			Action:     o.Action,
			Amount:     o.Amount,
			EntryPrice: o.EntryPrice,
			ExitPrice:  &exit,
			Outcome:    outcome,
			ProfitLoss: pl,
			Confidence: o.Confidence,
			StrategyID: o.StrategyID,
			RiskLevel:  o.RiskLevel,
			Lessons:    lessons,
			Market:     memory.ConditionsFrom(o.Snapshot),
		}
		id, err := e.storeMemory(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("learn from %s: %w", o.AssetID, err)
		}
		m.ID = id
		result = m
	}

	if e.population != nil {
		e.population.UpdateFitness(result.StrategyID)
	}

	e.logger.Info("trade learned",
		"asset", result.AssetID,
		"outcome", result.Outcome,
		"pnl_pct", fmt.Sprintf("%.2f", result.ProfitLoss),
		"lessons", len(result.Lessons),
	)
	return &result, nil
}

func (e *Engine) storeMemory(ctx context.Context, m memory.TradeMemory) (string, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	id, err := e.store.Store(ctx, m)
	if err != nil {
		return "", err
	}
	m.ID = id
	e.cache.Put(m)
	return id, nil
}

func (e *Engine) finalize(ctx context.Context, id string, fin memory.Finalization) (memory.TradeMemory, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	if err := e.store.Finalize(ctx, id, fin); err != nil {
		return memory.TradeMemory{}, err
	}

	m, ok := e.cache.Get(id)
	if !ok {
		fetched, err := e.store.Fetch(ctx, id)
		if err != nil {
			return memory.TradeMemory{}, err
		}
		e.cache.Put(*fetched)
		return *fetched, nil
	}
	final, err := m.Apply(fin)
	if err != nil {
		return memory.TradeMemory{}, err
	}
	e.cache.Put(final)
	return final, nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

// evaluate returns the outcome and signed percentage P&L. A flat exit is a loss.
func evaluate(action market.Action, entry, exit float64) (memory.Outcome, float64) {
	if entry <= 0 {
		return memory.OutcomeLoss, 0
	}
	pl := (exit - entry) / entry * 100
	if action == market.ActionSell {
		pl = -pl
	}
	if pl > 0 {
		return memory.OutcomeProfit, pl
	}
	return memory.OutcomeLoss, pl
}

func deriveLessons(o TradeOutcome, outcome memory.Outcome, pl float64) []string {
	var lessons []string
	switch {
	case pl <= -10:
		lessons = append(lessons, "poor risk management: loss exceeded 10%, tighten stop-loss")
	case pl >= 10:
		lessons = append(lessons, "strong entry: let winners run in similar conditions")
	}

	s := o.Snapshot
	switch {
	case outcome == memory.OutcomeLoss && o.Confidence >= 0.8:
		lessons = append(lessons, "overconfident: high confidence did not prevent a loss")
	case outcome == memory.OutcomeProfit && o.Confidence < 0.6:
		lessons = append(lessons, "underconfident: low-confidence setup paid off")
	}

	switch {
	case outcome == memory.OutcomeLoss && s.Trend == market.TrendBearish && o.Action == market.ActionBuy:
		lessons = append(lessons, "avoid buying against a bearish trend")
	case outcome == memory.OutcomeProfit && s.Volume24h > 0 && s.BuyPressure > s.SellPressure:
		lessons = append(lessons, "buy pressure confirmed the move")
	}

	if len(lessons) == 0 {
		if outcome == memory.OutcomeProfit {
			lessons = append(lessons, "modest gain: setup worked as expected")
		} else {
			lessons = append(lessons, fmt.Sprintf("small loss of %.2f%%: review entry timing", math.Abs(pl)))
		}
	}
	return lo.Slice(lessons, 0, 3)
}

// EvolvePersonality nudges the personality from the most recent finalized
// trades. It reports false when there is not enough history yet.
func (e *Engine) EvolvePersonality(ctx context.Context) (Personality, PerformanceStats, bool) {
	cfg := e.cfg.Evolution
	finalized := e.cache.Finalized()
	if len(finalized) < cfg.MinMemories {
		return e.Personality(), PerformanceStats{}, false
	}
	stats := computeStats(e.cache.Recent(cfg.Window))

	popSize := 0
	if e.population != nil {
		popSize = e.population.Size()
	}

	e.mu.Lock()
	before := e.personality
	e.personality = evolve(before, stats, popSize, cfg)
	after := e.personality
	e.mu.Unlock()

	e.logger.Info("personality evolved",
		"success_rate", fmt.Sprintf("%.2f", stats.SuccessRate),
		"avg_return", fmt.Sprintf("%.2f", stats.AvgReturn),
		"volatility", fmt.Sprintf("%.2f", stats.Volatility),
		"risk_tolerance", after.RiskTolerance,
		"aggressiveness", after.Aggressiveness,
		"confidence_threshold", after.ConfidenceThreshold,
	)

	if e.sink != nil {
		ctx, cancel := e.storeContext(ctx)
		defer cancel()
		if err := e.sink.SavePersonality(ctx, after, stats); err != nil {
			e.logger.Error("failed to persist personality", "error", err)
		}
	}
	return after, stats, true
}
