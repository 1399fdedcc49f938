package scheduler

import (
	"fmt"
	"time"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/strategy"
)

// Timings records how long each cycle stage took.
type Timings struct {
	Review     time.Duration `json:"review"`
	Discovery  time.Duration `json:"discovery"`
	Filter     time.Duration `json:"filter"`
	Prepare    time.Duration `json:"prepare"`
	Candidates time.Duration `json:"candidates"`
	Evolve     time.Duration `json:"evolve"`
	Total      time.Duration `json:"total"`
}

// TradeEvent is one executed order inside a cycle.
type TradeEvent struct {
	Time       time.Time     `json:"time"`
	AssetID    string        `json:"asset_id"`
	Action     market.Action `json:"action"`
	Amount     float64       `json:"amount"`
	Price      float64       `json:"price"`
	Units      float64       `json:"units"`
	TxRef      string        `json:"tx_ref"`
	PnL        float64       `json:"pnl"`
	PnLPercent float64       `json:"pnl_percent"`
	Reason     string        `json:"reason"`
	MemoryID   string        `json:"memory_id,omitempty"`
	StrategyID string        `json:"strategy_id,omitempty"`
}

// CycleResult aggregates one orchestration cycle. It is read-only once published.
//
// Executed counts orders the execution collaborator filled. Succeeded counts
// the executed orders whose memory and ledger bookkeeping also completed.
type CycleResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Discovered      int `json:"discovered"`
	Filtered        int `json:"filtered"`
	Decided         int `json:"decided"`
	Rejected        int `json:"rejected"`
	Executed        int `json:"executed"`
	Succeeded       int `json:"succeeded"`
	PositionsClosed int `json:"positions_closed"`

	Errors  []string `json:"errors"`
	Aborted bool     `json:"aborted"`
	Stopped bool     `json:"stopped"`

	Timings     Timings               `json:"timings"`
	Trades      []TradeEvent          `json:"trades"`
	Decisions   []decision.Decision   `json:"decisions"`
	Rejections  []string              `json:"rejections"`
	Personality *decision.Personality `json:"personality,omitempty"`
	Evolution   *strategy.Metrics     `json:"evolution,omitempty"`
	Portfolio   risk.PortfolioRisk    `json:"portfolio"`
	Balance     float64               `json:"balance"`
}

func (r *CycleResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary is a one-line description used in logs and notifications.
func (r CycleResult) Summary() string {
	return fmt.Sprintf("discovered %d, filtered %d, decided %d, executed %d, closed %d, errors %d in %s",
		r.Discovered, r.Filtered, r.Decided, r.Executed, r.PositionsClosed, len(r.Errors), r.Timings.Total.Round(time.Millisecond))
}
