package decision

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/memory"
)

func buildContext(prep *Preparation, personality Personality, funds float64) string {
	var sb strings.Builder
	s := prep.Snapshot

	sb.WriteString(fmt.Sprintf("## Asset %s\n", s.AssetID))
	sb.WriteString(fmt.Sprintf("Price: %.4f | 24h change: %+.2f%% | Volume 24h: %.0f | Liquidity: %.0f\n",
		s.Price, s.PriceChange24h, s.Volume24h, s.Liquidity))
	sb.WriteString(fmt.Sprintf("Volatility: %.2f | Buy/Sell pressure: %.2f/%.2f | Trend: %s\n\n",
		s.Volatility, s.BuyPressure, s.SellPressure, s.Trend))

	sb.WriteString("## Analysis\n")
	sb.WriteString(fmt.Sprintf("Technical score: %.2f | Sentiment: %.2f | Combined confidence: %.2f\n",
		prep.Technical, prep.Sentiment, prep.AIConfidence))
	if prep.MemoryOK {
		sb.WriteString(fmt.Sprintf("Similar-trade success rate: %.0f%%\n", prep.MemoryRate*100))
	}
	sb.WriteString(fmt.Sprintf("Available funds: %.2f\n\n", funds))

	if len(prep.Memories) > 0 {
		sb.WriteString("## Similar past trades\n")
		for _, m := range prep.Memories {
			sb.WriteString(formatMemory(m))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No similar past trades.\n\n")
	}

	if prep.Regime != nil {
		sb.WriteString(fmt.Sprintf("## Market regime: %s\n", prep.Regime.Name))
	} else {
		sb.WriteString("## Market regime: unclassified\n")
	}
	for _, g := range prep.Strategies {
		sb.WriteString(fmt.Sprintf("- strategy %s (%s) fitness %.2f, triggers: %s\n",
			g.ID, g.Type, g.Fitness, strings.Join(g.Triggers, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Personality\n")
	sb.WriteString(fmt.Sprintf("Risk tolerance %.2f, aggressiveness %.2f, confidence threshold %.2f, exploration %.2f\n",
		personality.RiskTolerance, personality.Aggressiveness, personality.ConfidenceThreshold, personality.ExplorationRate))

	return sb.String()
}

func formatMemory(m memory.Match) string {
	tm := m.Memory
	line := fmt.Sprintf("- %s %s %s, P&L %+.2f%%, confidence %.2f, similarity %.2f",
		tm.Timestamp.Format("2006-01-02"), tm.Action, tm.AssetID, tm.ProfitLoss, tm.Confidence, m.Score)
	if lessons := lo.Compact(tm.Lessons); len(lessons) > 0 {
		line += "; lessons: " + strings.Join(lessons, "; ")
	}
	return line + "\n"
}
