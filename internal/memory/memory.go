package memory

import (
	"context"
	"errors"
	"time"

	"github.com/camuig/evo-trader/internal/market"
)

type Outcome string

const (
	OutcomeProfit  Outcome = "PROFIT"
	OutcomeLoss    Outcome = "LOSS"
	OutcomePending Outcome = "PENDING"
)

var (
	ErrNotFound         = errors.New("trade memory not found")
	ErrAlreadyFinalized = errors.New("trade memory already finalized")
)

// Conditions is the market picture captured alongside a trade.
type Conditions struct {
	Volume24h      float64      `json:"volume_24h"`
	Liquidity      float64      `json:"liquidity"`
	PriceChange24h float64      `json:"price_change_24h"`
	BuyPressure    float64      `json:"buy_pressure"`
	SellPressure   float64      `json:"sell_pressure"`
	Trend          market.Trend `json:"trend"`
}

func ConditionsFrom(s market.Snapshot) Conditions {
	return Conditions{
		Volume24h:      s.Volume24h,
		Liquidity:      s.Liquidity,
		PriceChange24h: s.PriceChange24h,
		BuyPressure:    s.BuyPressure,
		SellPressure:   s.SellPressure,
		Trend:          s.Trend,
	}
}

// TradeMemory is one historical decision and its outcome. Once finalized it is
// never changed; a PENDING record may transition exactly once to PROFIT or LOSS.
type TradeMemory struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	AssetID    string           `json:"asset_id"`
	Action     market.Action    `json:"action"`
	Amount     float64          `json:"amount"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  *float64         `json:"exit_price,omitempty"`
	Outcome    Outcome          `json:"outcome"`
	ProfitLoss float64          `json:"profit_loss"`
	Confidence float64          `json:"confidence"`
	StrategyID string           `json:"strategy_id"`
	RiskLevel  market.RiskLevel `json:"risk_level"`
	Lessons    []string         `json:"lessons"`
	Market     Conditions       `json:"market"`
}

func (m TradeMemory) Finalized() bool {
	return m.Outcome == OutcomeProfit || m.Outcome == OutcomeLoss
}

func (m TradeMemory) Profitable() bool {
	return m.Outcome == OutcomeProfit
}

// Finalization carries the exit data that closes a PENDING memory.
type Finalization struct {
	ExitPrice  float64
	Outcome    Outcome
	ProfitLoss float64
	Lessons    []string
}

// Apply returns a copy of m with the finalization applied.
func (m TradeMemory) Apply(f Finalization) (TradeMemory, error) {
	if m.Finalized() {
		return m, ErrAlreadyFinalized
	}
	exit := f.ExitPrice
	m.ExitPrice = &exit
	m.Outcome = f.Outcome
	m.ProfitLoss = f.ProfitLoss
	m.Lessons = append([]string(nil), f.Lessons...)
	return m, nil
}

type Filter struct {
	AssetID    string
	StrategyID string
	Outcome    Outcome
	Since      time.Time
	Limit      int
}

func (f Filter) Match(m TradeMemory) bool {
	if f.AssetID != "" && m.AssetID != f.AssetID {
		return false
	}
	if f.StrategyID != "" && m.StrategyID != f.StrategyID {
		return false
	}
	if f.Outcome != "" && m.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Store is the durable, append-only memory collaborator.
type Store interface {
	Store(ctx context.Context, m TradeMemory) (string, error)
	FetchAll(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, id string) (*TradeMemory, error)
	Query(ctx context.Context, f Filter) ([]TradeMemory, error)
	Finalize(ctx context.Context, id string, f Finalization) error
}
