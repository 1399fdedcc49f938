package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/camuig/evo-trader/internal/broker"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/risk"
)

type fakeBroker struct {
	lot       int64
	fillPrice float64
	buyErr    error

	bought    []int64
	sold      []int64
	stopLoss  []float64
	takeProf  []float64
	cancelled []string
}

func (f *fakeBroker) ResolveInstrument(_ context.Context, ticker string) (broker.Instrument, error) {
	if ticker == "UNKNOWN" {
		return broker.Instrument{}, errors.New("not found")
	}
	return broker.Instrument{Ticker: ticker, UID: "uid-" + ticker, Lot: f.lot}, nil
}

func (f *fakeBroker) Buy(_ context.Context, _ string, lots int64) (*broker.OrderResult, error) {
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	f.bought = append(f.bought, lots)
	return &broker.OrderResult{OrderID: "ord-buy", ExecutedLots: lots, ExecutedPrice: f.fillPrice}, nil
}

func (f *fakeBroker) Sell(_ context.Context, _ string, lots int64) (*broker.OrderResult, error) {
	f.sold = append(f.sold, lots)
	return &broker.OrderResult{OrderID: "ord-sell", ExecutedLots: lots, ExecutedPrice: f.fillPrice}, nil
}

func (f *fakeBroker) PlaceStopLoss(_ context.Context, _ string, _ int64, price float64) (string, error) {
	f.stopLoss = append(f.stopLoss, price)
	return "sl-1", nil
}

func (f *fakeBroker) PlaceTakeProfit(_ context.Context, _ string, _ int64, price float64) (string, error) {
	f.takeProf = append(f.takeProf, price)
	return "tp-1", nil
}

func (f *fakeBroker) CancelStopOrders(_ context.Context, sl, tp string) {
	f.cancelled = append(f.cancelled, sl, tp)
}

type staticProfile struct{ p risk.Profile }

func (s staticProfile) Profile() risk.Profile { return s.p }

func TestExecuteBuyRoundsToLotsAndPlacesStops(t *testing.T) {
	fb := &fakeBroker{lot: 10, fillPrice: 101}
	e := NewExecutor(fb, staticProfile{risk.DefaultProfile()}, false, logger.Discard())

	res, err := e.Execute(context.Background(), market.Order{
		AssetID: "SBER", Action: market.ActionBuy, Amount: 3500, ExpectedPrice: 100, MaxSlippage: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Filled != 30 || res.ActualPrice != 101 || res.TxRef != "ord-buy" {
		t.Fatalf("result = %+v", res)
	}
	if res.AmountOut != 30*101 {
		t.Fatalf("amount out = %v", res.AmountOut)
	}
	if len(fb.bought) != 1 || fb.bought[0] != 3 {
		t.Fatalf("bought lots = %v", fb.bought)
	}
	if len(fb.stopLoss) != 1 || math.Abs(fb.stopLoss[0]-95.95) > 1e-9 || math.Abs(fb.takeProf[0]-111.1) > 1e-9 {
		t.Fatalf("stops = %v / %v", fb.stopLoss, fb.takeProf)
	}

	sell, err := e.Execute(context.Background(), market.Order{
		AssetID: "SBER", Action: market.ActionSell, Units: 30, ExpectedPrice: 105,
	})
	if err != nil || !sell.Success {
		t.Fatalf("sell = %+v, %v", sell, err)
	}
	if len(fb.sold) != 1 || fb.sold[0] != 3 {
		t.Fatalf("sold lots = %v", fb.sold)
	}
	if len(fb.cancelled) != 2 || fb.cancelled[0] != "sl-1" || fb.cancelled[1] != "tp-1" {
		t.Fatalf("cancelled = %v", fb.cancelled)
	}
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name    string
		broker  *fakeBroker
		order   market.Order
		wantErr bool
	}{
		{
			name:   "below one lot",
			broker: &fakeBroker{lot: 100, fillPrice: 50},
			order:  market.Order{AssetID: "GAZP", Action: market.ActionBuy, Amount: 1000, ExpectedPrice: 50},
		},
		{
			name:   "no price",
			broker: &fakeBroker{lot: 1},
			order:  market.Order{AssetID: "GAZP", Action: market.ActionBuy, Amount: 1000},
		},
		{
			name:   "hold",
			broker: &fakeBroker{lot: 1},
			order:  market.Order{AssetID: "GAZP", Action: market.ActionHold, ExpectedPrice: 10},
		},
		{
			name:    "unknown ticker",
			broker:  &fakeBroker{lot: 1},
			order:   market.Order{AssetID: "UNKNOWN", Action: market.ActionBuy, Amount: 100, ExpectedPrice: 10},
			wantErr: true,
		},
		{
			name:    "broker error",
			broker:  &fakeBroker{lot: 1, buyErr: errors.New("rejected")},
			order:   market.Order{AssetID: "GAZP", Action: market.ActionBuy, Amount: 100, ExpectedPrice: 10},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(tt.broker, nil, false, logger.Discard())
			res, err := e.Execute(context.Background(), tt.order)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", res)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if res.Success || res.Error == "" {
				t.Fatalf("expected failed result, got %+v", res)
			}
			if len(tt.broker.bought) != 0 {
				t.Fatal("no order should reach the broker")
			}
		})
	}
}

func TestExecuteDryRunSkipsBroker(t *testing.T) {
	fb := &fakeBroker{lot: 1, fillPrice: 999}
	e := NewExecutor(fb, staticProfile{risk.DefaultProfile()}, true, logger.Discard())

	res, err := e.Execute(context.Background(), market.Order{AssetID: "LKOH", Action: market.ActionBuy, Amount: 250, ExpectedPrice: 100})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ActualPrice != 100 || res.Filled != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(fb.bought) != 0 || len(fb.stopLoss) != 0 {
		t.Fatal("dry run reached the broker")
	}
}

func TestLotsForAmount(t *testing.T) {
	tests := []struct {
		amount, price float64
		lot           int64
		want          int64
	}{
		{1000, 100, 1, 10},
		{999.99, 100, 1, 9},
		{3500, 100, 10, 3},
		{0, 100, 1, 0},
		{100, 0, 1, 0},
		{0.3, 0.1, 1, 3},
	}
	for _, tt := range tests {
		if got := lotsForAmount(tt.amount, tt.price, tt.lot); got != tt.want {
			t.Errorf("lotsForAmount(%v, %v, %d) = %d, want %d", tt.amount, tt.price, tt.lot, got, tt.want)
		}
	}
}

func TestCancelStopsWithoutSell(t *testing.T) {
	fb := &fakeBroker{lot: 1, fillPrice: 100}
	e := NewExecutor(fb, staticProfile{risk.DefaultProfile()}, false, logger.Discard())

	if _, err := e.Execute(context.Background(), market.Order{
		AssetID: "GAZP", Action: market.ActionBuy, Amount: 1000, ExpectedPrice: 100,
	}); err != nil {
		t.Fatal(err)
	}

	e.CancelStops(context.Background(), "GAZP")
	if len(fb.sold) != 0 {
		t.Fatalf("no sell expected, sold = %v", fb.sold)
	}
	if len(fb.cancelled) != 2 || fb.cancelled[0] != "sl-1" || fb.cancelled[1] != "tp-1" {
		t.Fatalf("cancelled = %v", fb.cancelled)
	}

	e.CancelStops(context.Background(), "GAZP")
	if len(fb.cancelled) != 2 {
		t.Fatalf("second cancel should be a no-op, cancelled = %v", fb.cancelled)
	}
}
