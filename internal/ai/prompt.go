package ai

import (
	"fmt"
	"strings"

	"github.com/camuig/evo-trader/internal/decision"
)

const systemPrompt = `You are an experienced trader on the Moscow Exchange (MOEX, board TQBR).
You evaluate ONE candidate asset at a time and decide: BUY (open or add), SELL (close) or HOLD.
The holding horizon is a few hours to two days.

You are given:
- Current market data for the asset (price, 24h change, volume, liquidity, volatility, buy/sell pressure, trend)
- A pre-computed technical score, news sentiment and combined confidence
- Similar past trades with their outcomes and lessons
- The detected market regime and the best-performing strategies for it
- The agent personality (risk tolerance, aggressiveness, confidence threshold)

Rules:
1. Learn from similar past trades: repeat what worked, avoid what failed.
2. Prefer the suggested strategy for the regime; name it in strategy_id.
3. amount is in RUB and must not exceed the available funds.
4. confidence is between 0 and 1.
5. risk_level is one of LOW, MEDIUM, HIGH, CRITICAL.
6. If the setup is unclear, answer HOLD with amount 0.

Answer strictly with one JSON object:
{
  "action": "BUY",
  "amount": 5000,
  "confidence": 0.72,
  "reasoning": "short explanation",
  "strategy_id": "id of the strategy used",
  "risk_level": "MEDIUM"
}`

// BuildUserPrompt appends the reasoning context with the suggested strategy.
func BuildUserPrompt(p decision.Prompt) string {
	var sb strings.Builder

	sb.WriteString(p.Text)
	sb.WriteString("\n")

	if p.Strategy != nil {
		g := p.Strategy
		sb.WriteString(fmt.Sprintf("## Suggested strategy %s (%s)\n", g.ID, g.Type))
		for _, k := range sortedParamKeys(g.Parameters) {
			sb.WriteString(fmt.Sprintf("- %s: %.3f\n", k, g.Parameters[k]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Decide for %s. Available funds: %.2f RUB.\n", p.AssetID, p.AvailableFunds))
	return sb.String()
}
