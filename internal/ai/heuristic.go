package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/market"
)

// HeuristicReasoner is the deterministic reasoner used when no LLM is
// configured. It buys when the pre-computed confidence clears BuyThreshold
// and the trend is not bearish.
type HeuristicReasoner struct {
	BuyThreshold float64
}

func NewHeuristicReasoner() *HeuristicReasoner {
	return &HeuristicReasoner{BuyThreshold: 0.6}
}

func (h *HeuristicReasoner) Reason(_ context.Context, p decision.Prompt) (*decision.Proposal, error) {
	s := p.Snapshot
	prop := &decision.Proposal{
		Action:     market.ActionHold,
		Confidence: p.AIConfidence,
		RiskLevel:  riskFromVolatility(s.Volatility),
	}
	if p.Strategy != nil {
		prop.StrategyID = p.Strategy.ID
	}

	if p.AIConfidence < h.BuyThreshold || s.Trend == market.TrendBearish {
		prop.Reasoning = fmt.Sprintf("heuristic: confidence %.2f, trend %s; no entry", p.AIConfidence, s.Trend)
		return prop, nil
	}

	scale := 0.5
	if p.Strategy != nil {
		scale = p.Strategy.PositionScale()
	}
	prop.Action = market.ActionBuy
	prop.Amount = p.AvailableFunds * scale * p.AIConfidence
	prop.Reasoning = fmt.Sprintf("heuristic: confidence %.2f, trend %s, technical %.2f, sentiment %.2f",
		p.AIConfidence, s.Trend, p.TechnicalScore, p.Sentiment)
	return prop, nil
}

func riskFromVolatility(v float64) market.RiskLevel {
	switch {
	case v >= 10:
		return market.RiskCritical
	case v >= 5:
		return market.RiskHigh
	case v >= 2:
		return market.RiskMedium
	default:
		return market.RiskLow
	}
}

func sortedParamKeys(m map[string]float64) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
