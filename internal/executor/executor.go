package executor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camuig/evo-trader/internal/broker"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/risk"
)

// Broker is the subset of the broker client the executor drives.
type Broker interface {
	ResolveInstrument(ctx context.Context, ticker string) (broker.Instrument, error)
	Buy(ctx context.Context, instrumentID string, lots int64) (*broker.OrderResult, error)
	Sell(ctx context.Context, instrumentID string, lots int64) (*broker.OrderResult, error)
	PlaceStopLoss(ctx context.Context, instrumentID string, lots int64, stopPrice float64) (string, error)
	PlaceTakeProfit(ctx context.Context, instrumentID string, lots int64, targetPrice float64) (string, error)
	CancelStopOrders(ctx context.Context, slOrderID, tpOrderID string)
}

// ProfileSource supplies the live stop-loss and take-profit percentages.
type ProfileSource interface {
	Profile() risk.Profile
}

type stopPair struct {
	stopLoss   string
	takeProfit string
}

// Executor turns engine orders into broker market orders.
//
// A BUY spends up to Amount on whole lots. A SELL sells Units (rounded down
// to whole lots). AmountOut is the currency value of the fill and Filled the
// number of units.
type Executor struct {
	broker   Broker
	profiles ProfileSource
	dryRun   bool
	logger   *logger.Logger

	mu    sync.Mutex
	stops map[string][]stopPair
}

func NewExecutor(b Broker, profiles ProfileSource, dryRun bool, log *logger.Logger) *Executor {
	return &Executor{
		broker:   b,
		profiles: profiles,
		dryRun:   dryRun,
		logger:   log.Named("executor"),
		stops:    make(map[string][]stopPair),
	}
}

func (e *Executor) Execute(ctx context.Context, order market.Order) (*market.ExecutionResult, error) {
	if order.ExpectedPrice <= 0 {
		return failed("no reference price for %s", order.AssetID), nil
	}

	inst, err := e.broker.ResolveInstrument(ctx, order.AssetID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", order.AssetID, err)
	}

	switch order.Action {
	case market.ActionBuy:
		return e.buy(ctx, inst, order)
	case market.ActionSell:
		return e.sell(ctx, inst, order)
	default:
		return failed("nothing to execute for %s", order.Action), nil
	}
}

func (e *Executor) buy(ctx context.Context, inst broker.Instrument, order market.Order) (*market.ExecutionResult, error) {
	lots := lotsForAmount(order.Amount, order.ExpectedPrice, inst.Lot)
	if lots < 1 {
		return failed("amount %.2f below one lot of %s (%.2f)", order.Amount, order.AssetID, order.ExpectedPrice*float64(inst.Lot)), nil
	}

	fill, err := e.place(ctx, inst, order, lots)
	if err != nil || !fill.Success {
		return fill, err
	}

	e.placeStops(ctx, inst, order.AssetID, lots, fill.ActualPrice)
	e.logger.Info("BUY executed",
		"ticker", order.AssetID, "price", fill.ActualPrice, "lots", lots, "amount", fill.AmountOut)
	return fill, nil
}

func (e *Executor) sell(ctx context.Context, inst broker.Instrument, order market.Order) (*market.ExecutionResult, error) {
	units := order.Units
	if units <= 0 {
		units = order.Amount / order.ExpectedPrice
	}
	lots := int64(math.Floor(units / float64(inst.Lot)))
	if lots < 1 {
		return failed("position in %s is below one lot", order.AssetID), nil
	}

	fill, err := e.place(ctx, inst, order, lots)
	if err != nil || !fill.Success {
		return fill, err
	}

	e.CancelStops(ctx, order.AssetID)

	e.logger.Info("SELL executed",
		"ticker", order.AssetID, "price", fill.ActualPrice, "lots", lots, "amount", fill.AmountOut)
	return fill, nil
}

func (e *Executor) place(ctx context.Context, inst broker.Instrument, order market.Order, lots int64) (*market.ExecutionResult, error) {
	if e.dryRun {
		units := float64(lots * inst.Lot)
		e.logger.Info("dry run order", "ticker", order.AssetID, "action", order.Action, "lots", lots)
		return &market.ExecutionResult{
			Success:     true,
			ActualPrice: order.ExpectedPrice,
			AmountOut:   units * order.ExpectedPrice,
			Filled:      units,
			TxRef:       "dry-" + uuid.NewString(),
		}, nil
	}

	var (
		res *broker.OrderResult
		err error
	)
	if order.Action == market.ActionBuy {
		res, err = e.broker.Buy(ctx, inst.UID, lots)
	} else {
		res, err = e.broker.Sell(ctx, inst.UID, lots)
	}
	if err != nil {
		return nil, err
	}
	if res.ExecutedLots < 1 {
		return failed("order %s for %s was not filled", res.OrderID, order.AssetID), nil
	}

	units := float64(res.ExecutedLots * inst.Lot)
	price := res.ExecutedPrice
	if price <= 0 && res.TotalAmount > 0 {
		price = res.TotalAmount / units
	}
	if price <= 0 {
		price = order.ExpectedPrice
	}

	if slip := slippagePct(order.ExpectedPrice, price); order.MaxSlippage > 0 && slip > order.MaxSlippage {
		e.logger.Warn("slippage above limit",
			"ticker", order.AssetID, "expected", order.ExpectedPrice, "actual", price, "slippage_pct", slip)
	}

	return &market.ExecutionResult{
		Success:     true,
		ActualPrice: price,
		AmountOut:   units * price,
		Filled:      units,
		TxRef:       res.OrderID,
	}, nil
}

func (e *Executor) placeStops(ctx context.Context, inst broker.Instrument, ticker string, lots int64, price float64) {
	if e.dryRun || e.profiles == nil {
		return
	}
	p := e.profiles.Profile()

	slPrice := price * (1 - p.StopLossPercent/100)
	tpPrice := price * (1 + p.TakeProfitPercent/100)

	slID, err := e.broker.PlaceStopLoss(ctx, inst.UID, lots, slPrice)
	if err != nil {
		e.logger.Error("place stop loss", "ticker", ticker, "error", err)
	}
	tpID, err := e.broker.PlaceTakeProfit(ctx, inst.UID, lots, tpPrice)
	if err != nil {
		e.logger.Error("place take profit", "ticker", ticker, "error", err)
	}
	if slID == "" && tpID == "" {
		return
	}

	e.mu.Lock()
	e.stops[ticker] = append(e.stops[ticker], stopPair{stopLoss: slID, takeProfit: tpID})
	e.mu.Unlock()
}

// CancelStops cancels every protective order placed for ticker. It is called
// after a SELL and when a position turns out to be closed at the broker.
func (e *Executor) CancelStops(ctx context.Context, ticker string) {
	e.mu.Lock()
	pairs := e.stops[ticker]
	delete(e.stops, ticker)
	e.mu.Unlock()

	for _, p := range pairs {
		e.broker.CancelStopOrders(ctx, p.stopLoss, p.takeProfit)
	}
}

// lotsForAmount is the number of whole lots amount buys at price.
func lotsForAmount(amount, price float64, lot int64) int64 {
	if amount <= 0 || price <= 0 || lot < 1 {
		return 0
	}
	lotPrice := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(lot))
	return decimal.NewFromFloat(amount).Div(lotPrice).Floor().IntPart()
}

func slippagePct(expected, actual float64) float64 {
	if expected <= 0 {
		return 0
	}
	return math.Abs(actual-expected) / expected * 100
}

func failed(format string, args ...any) *market.ExecutionResult {
	return &market.ExecutionResult{Error: fmt.Sprintf(format, args...)}
}
