// Package market holds the data exchanged with the discovery, market data and
// execution collaborators.
package market

import (
	"strings"
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes free-form action strings. Unknown values report false.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "ENTER":
		return ActionBuy, true
	case "SELL", "CLOSE", "EXIT":
		return ActionSell, true
	case "HOLD", "WAIT", "NONE":
		return ActionHold, true
	default:
		return "", false
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels; unknown levels rank as MEDIUM.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 1
	}
}

// Score maps a risk level into [0,1].
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskLow:
		return 0.2
	case RiskHigh:
		return 0.8
	case RiskCritical:
		return 1.0
	default:
		return 0.5
	}
}

func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return RiskLow
	case "HIGH":
		return RiskHigh
	case "CRITICAL":
		return RiskCritical
	default:
		return RiskMedium
	}
}

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Candidate is an asset returned by discovery.
// Confidence <= 0 means discovery expressed no opinion.
type Candidate struct {
	AssetID        string    `json:"asset_id"`
	Price          float64   `json:"price"`
	Liquidity      float64   `json:"liquidity"`
	Volume24h      float64   `json:"volume_24h"`
	PriceChange24h float64   `json:"price_change_24h"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Confidence     float64   `json:"confidence"`
}

// Snapshot is the live market picture for one asset.
type Snapshot struct {
	AssetID        string    `json:"asset_id"`
	Price          float64   `json:"price"`
	Volume24h      float64   `json:"volume_24h"`
	Liquidity      float64   `json:"liquidity"`
	PriceChange24h float64   `json:"price_change_24h"`
	Volatility     float64   `json:"volatility"`
	BuyPressure    float64   `json:"buy_pressure"`
	SellPressure   float64   `json:"sell_pressure"`
	Trend          Trend     `json:"trend"`
	TakenAt        time.Time `json:"taken_at"`
}

// Order is what the engine asks the execution collaborator to do.
// Amount is in account currency for BUY; Units is the quantity to sell for SELL.
type Order struct {
	AssetID       string  `json:"asset_id"`
	Action        Action  `json:"action"`
	Amount        float64 `json:"amount"`
	Units         float64 `json:"units"`
	ExpectedPrice float64 `json:"expected_price"`
	MaxSlippage   float64 `json:"max_slippage"`
}

type ExecutionResult struct {
	Success     bool    `json:"success"`
	ActualPrice float64 `json:"actual_price"`
	AmountOut   float64 `json:"amount_out"`
	Filled      float64 `json:"filled"`
	TxRef       string  `json:"tx_ref"`
	Error       string  `json:"error,omitempty"`
}
