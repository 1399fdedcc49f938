package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
)

const (
	// gasBuffer is the balance headroom required on top of the trade amount.
	gasBuffer = 1.05

	maxDrawdownPercent = 25.0
	approvalCeiling    = 80.0
	maxScore           = 100.0

	scoreOversized   = 30
	scoreLiquidity   = 25
	scoreExposure    = 20
	scoreVolatility  = 15
	scorePriceImpact = 20
	scoreDrawdown    = 25
)

var (
	ErrNoHeadroom       = errors.New("no exposure headroom left")
	ErrExposureCeiling  = errors.New("position would exceed exposure ceiling")
	ErrUnknownPosition  = errors.New("position not tracked")
	ErrStaleReservation = errors.New("reservation already settled")
)

// Request is one candidate trade put to the gate.
type Request struct {
	AssetID       string
	Action        market.Action
	Amount        float64
	Confidence    float64
	WalletBalance float64
	Liquidity     float64
	Volatility    float64
	// PriceImpactPercent is estimated from Amount/Liquidity when zero.
	PriceImpactPercent float64
}

type Assessment struct {
	Approved       bool     `json:"approved"`
	RiskScore      float64  `json:"risk_score"`
	AdjustedAmount float64  `json:"adjusted_amount"`
	Adjusted       bool     `json:"adjusted"`
	Reasons        []string `json:"reasons"`
}

type Position struct {
	AssetID       string    `json:"asset_id"`
	EntryPrice    float64   `json:"entry_price"`
	Amount        float64   `json:"amount"`
	Units         float64   `json:"units"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
	MemoryID      string    `json:"memory_id,omitempty"`
	StrategyID    string    `json:"strategy_id,omitempty"`
	Confidence    float64   `json:"confidence"`
}

// ChangePercent is the signed move of the current price against entry.
func (p Position) ChangePercent() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

type CloseSignal struct {
	ShouldClose bool   `json:"should_close"`
	Reason      string `json:"reason,omitempty"`
}

// Reservation holds exposure for an approved trade until it is confirmed or released.
type Reservation struct {
	ID      string
	AssetID string
	Amount  float64
}

type PortfolioRisk struct {
	Level            market.RiskLevel `json:"level"`
	ExposurePercent  float64          `json:"exposure_percent"`
	DrawdownPercent  float64          `json:"drawdown_percent"`
	TotalExposure    float64          `json:"total_exposure"`
	OpenPositions    int              `json:"open_positions"`
	LastKnownBalance float64          `json:"last_known_balance"`
}

// Gate evaluates trades and owns the position ledger. Every read and write of
// positions, reservations and the balance happens under mu.
type Gate struct {
	mu           sync.Mutex
	profile      Profile
	positions    map[string]*Position
	reservations map[string]Reservation
	balance      float64
	logger       *logger.Logger
	now          func() time.Time
}

func NewGate(profile Profile, log *logger.Logger) *Gate {
	return &Gate{
		profile:      profile,
		positions:    make(map[string]*Position),
		reservations: make(map[string]Reservation),
		logger:       log,
		now:          time.Now,
	}
}

func (g *Gate) Profile() Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profile
}

// SetProfile swaps the policy live. Open positions are kept.
func (g *Gate) SetProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid risk profile: %w", err)
	}
	g.mu.Lock()
	g.profile = p
	g.mu.Unlock()
	g.logger.Info("risk profile updated",
		"max_position_pct", p.MaxPositionSizePercent,
		"max_exposure_pct", p.MaxTotalExposurePercent,
		"min_confidence", p.MinConfidenceThreshold,
	)
	return nil
}

// SetBalance records the last known wallet balance used for the exposure ceiling.
func (g *Gate) SetBalance(balance float64) {
	g.mu.Lock()
	g.balance = balance
	g.mu.Unlock()
}

// AssessTrade evaluates req against the current ledger without changing it.
func (g *Gate) AssessTrade(req Request) Assessment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.assessLocked(req)
}

func (g *Gate) assessLocked(req Request) Assessment {
	p := g.profile
	a := Assessment{AdjustedAmount: req.Amount}

	if req.Confidence < p.MinConfidenceThreshold {
		a.RiskScore = maxScore
		a.Reasons = append(a.Reasons, fmt.Sprintf("confidence %.2f below minimum %.2f", req.Confidence, p.MinConfidenceThreshold))
		return a
	}

	buying := req.Action != market.ActionSell

	if buying && req.WalletBalance < req.Amount*gasBuffer {
		a.RiskScore = maxScore
		a.Reasons = append(a.Reasons, fmt.Sprintf("balance %.2f below required %.2f", req.WalletBalance, req.Amount*gasBuffer))
		return a
	}

	var score float64
	headroomExhausted := false

	if buying {
		maxSize := req.WalletBalance * p.MaxPositionSizePercent / 100
		if a.AdjustedAmount > maxSize {
			score += scoreOversized
			a.Reasons = append(a.Reasons, fmt.Sprintf("position %.2f exceeds %.0f%% of balance, reduced to %.2f", a.AdjustedAmount, p.MaxPositionSizePercent, maxSize))
			a.AdjustedAmount = maxSize
			a.Adjusted = true
		}
	}

	if req.Liquidity < p.MinLiquidity {
		score += scoreLiquidity
		a.Reasons = append(a.Reasons, fmt.Sprintf("liquidity %.0f below floor %.0f", req.Liquidity, p.MinLiquidity))
	}

	if buying {
		ceiling := req.WalletBalance * p.MaxTotalExposurePercent / 100
		exposure := g.exposureLocked()
		if exposure+a.AdjustedAmount > ceiling {
			score += scoreExposure
			headroom := math.Max(0, ceiling-exposure)
			if headroom <= 0 {
				headroomExhausted = true
				a.Reasons = append(a.Reasons, fmt.Sprintf("exposure %.2f already at ceiling %.2f", exposure, ceiling))
			} else {
				a.Reasons = append(a.Reasons, fmt.Sprintf("exposure would exceed ceiling %.2f, reduced to %.2f", ceiling, headroom))
				a.AdjustedAmount = headroom
				a.Adjusted = true
			}
		}
	}

	if req.Volatility > p.MaxVolatility {
		score += scoreVolatility
		a.Reasons = append(a.Reasons, fmt.Sprintf("volatility %.2f above ceiling %.2f", req.Volatility, p.MaxVolatility))
	}

	impact := req.PriceImpactPercent
	if impact == 0 && req.Liquidity > 0 {
		impact = a.AdjustedAmount / req.Liquidity * 100
	}
	if impact > p.MaxPriceImpactPercent {
		score += scorePriceImpact
		a.Reasons = append(a.Reasons, fmt.Sprintf("price impact %.2f%% above ceiling %.2f%%", impact, p.MaxPriceImpactPercent))
	}

	if dd := g.drawdownLocked(); dd > maxDrawdownPercent {
		score += scoreDrawdown
		a.Reasons = append(a.Reasons, fmt.Sprintf("portfolio drawdown %.1f%% above %.0f%%", dd, maxDrawdownPercent))
	}

	a.RiskScore = math.Min(score, maxScore)
	a.Approved = a.RiskScore < approvalCeiling && !headroomExhausted
	if headroomExhausted {
		a.AdjustedAmount = 0
	}
	return a
}

// AssessAndReserve assesses req and, when approved, reserves the adjusted
// amount against the exposure ceiling in the same critical section.
func (g *Gate) AssessAndReserve(req Request) (Assessment, *Reservation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.WalletBalance > 0 {
		g.balance = req.WalletBalance
	}
	a := g.assessLocked(req)
	if !a.Approved || req.Action == market.ActionSell {
		return a, nil
	}
	res := Reservation{ID: uuid.NewString(), AssetID: req.AssetID, Amount: a.AdjustedAmount}
	g.reservations[res.ID] = res
	return a, &res
}

// Confirm turns a reservation into an open position.
func (g *Gate) Confirm(res *Reservation, pos Position) error {
	if res == nil {
		return fmt.Errorf("confirm: %w", ErrStaleReservation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.reservations[res.ID]; !ok {
		return fmt.Errorf("confirm %s: %w", res.AssetID, ErrStaleReservation)
	}
	delete(g.reservations, res.ID)
	if pos.Amount > res.Amount {
		pos.Amount = res.Amount
	}
	g.openLocked(pos)
	return nil
}

// Release frees a reservation whose trade did not go through.
func (g *Gate) Release(res *Reservation) {
	if res == nil {
		return
	}
	g.mu.Lock()
	delete(g.reservations, res.ID)
	g.mu.Unlock()
}

// TrackPosition adds or grows a position directly, outside the reservation flow.
func (g *Gate) TrackPosition(pos Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.balance > 0 {
		ceiling := g.balance * g.profile.MaxTotalExposurePercent / 100
		if g.exposureLocked()+pos.Amount > ceiling {
			return fmt.Errorf("track %s: %w", pos.AssetID, ErrExposureCeiling)
		}
	}
	g.openLocked(pos)
	return nil
}

func (g *Gate) openLocked(pos Position) {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = g.now()
	}
	if pos.CurrentPrice == 0 {
		pos.CurrentPrice = pos.EntryPrice
	}

	if existing, ok := g.positions[pos.AssetID]; ok {
		total := existing.Amount + pos.Amount
		if total > 0 {
			existing.EntryPrice = (existing.EntryPrice*existing.Amount + pos.EntryPrice*pos.Amount) / total
		}
		existing.Amount = total
		existing.Units += pos.Units
		existing.CurrentPrice = pos.CurrentPrice
		existing.UnrealizedPnL = existing.Amount * existing.ChangePercent() / 100
		return
	}

	p := pos
	p.UnrealizedPnL = p.Amount * p.ChangePercent() / 100
	g.positions[pos.AssetID] = &p
	g.logger.Info("position tracked", "asset", pos.AssetID, "amount", pos.Amount, "entry", pos.EntryPrice)
}

// UpdatePosition marks a position to market and reports whether a stop-loss
// or take-profit boundary was crossed.
func (g *Gate) UpdatePosition(assetID string, price float64) (CloseSignal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[assetID]
	if !ok {
		return CloseSignal{}, fmt.Errorf("update %s: %w", assetID, ErrUnknownPosition)
	}
	pos.CurrentPrice = price
	change := pos.ChangePercent()
	pos.UnrealizedPnL = pos.Amount * change / 100

	switch {
	case change <= -g.profile.StopLossPercent:
		return CloseSignal{ShouldClose: true, Reason: fmt.Sprintf("stop-loss hit: %.2f%%", change)}, nil
	case change >= g.profile.TakeProfitPercent:
		return CloseSignal{ShouldClose: true, Reason: fmt.Sprintf("take-profit hit: +%.2f%%", change)}, nil
	}
	return CloseSignal{}, nil
}

// ClosePosition removes the position and returns its last state.
func (g *Gate) ClosePosition(assetID string) (Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[assetID]
	if !ok {
		return Position{}, fmt.Errorf("close %s: %w", assetID, ErrUnknownPosition)
	}
	delete(g.positions, assetID)
	g.logger.Info("position closed", "asset", assetID, "pnl", pos.UnrealizedPnL)
	return *pos, nil
}

func (g *Gate) Position(assetID string) (Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, ok := g.positions[assetID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a snapshot of open positions ordered by asset.
func (g *Gate) Positions() []Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := lo.MapToSlice(g.positions, func(_ string, p *Position) Position { return *p })
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// TotalExposure includes pending reservations.
func (g *Gate) TotalExposure() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exposureLocked()
}

func (g *Gate) exposureLocked() float64 {
	var total float64
	for _, p := range g.positions {
		total += p.Amount
	}
	for _, r := range g.reservations {
		total += r.Amount
	}
	return total
}

func (g *Gate) drawdownLocked() float64 {
	var invested, pnl float64
	for _, p := range g.positions {
		invested += p.Amount
		pnl += p.UnrealizedPnL
	}
	if invested <= 0 || pnl >= 0 {
		return 0
	}
	return -pnl / invested * 100
}

// GetPortfolioRisk classifies the whole book by exposure and drawdown.
func (g *Gate) GetPortfolioRisk() PortfolioRisk {
	g.mu.Lock()
	defer g.mu.Unlock()

	exposure := g.exposureLocked()
	r := PortfolioRisk{
		TotalExposure:    exposure,
		DrawdownPercent:  g.drawdownLocked(),
		OpenPositions:    len(g.positions),
		LastKnownBalance: g.balance,
	}
	if g.balance > 0 {
		r.ExposurePercent = exposure / g.balance * 100
	}
	r.Level = classify(r.ExposurePercent, r.DrawdownPercent)
	return r
}

func classify(exposurePct, drawdownPct float64) market.RiskLevel {
	switch {
	case exposurePct >= 90 || drawdownPct >= 25:
		return market.RiskCritical
	case exposurePct >= 70 || drawdownPct >= 15:
		return market.RiskHigh
	case exposurePct >= 40 || drawdownPct >= 5:
		return market.RiskMedium
	default:
		return market.RiskLow
	}
}
