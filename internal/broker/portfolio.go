package broker

import (
	"context"
	"fmt"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

type PortfolioInfo struct {
	TotalRub     float64
	AvailableRub float64
	Positions    []PositionInfo
}

type PositionInfo struct {
	Ticker        string
	InstrumentUID string
	Lot           int64
	Quantity      float64 // units, not lots
	AvgPrice      float64
	CurrentPrice  float64
	PnL           float64
}

// Lots is the whole number of lots the position holds.
func (p PositionInfo) Lots() int64 {
	if p.Lot < 1 {
		return int64(p.Quantity)
	}
	return int64(p.Quantity) / p.Lot
}

func (bc *BrokerClient) GetPortfolio(ctx context.Context) (*PortfolioInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	accountID := bc.AccountID()
	currency := pb.PortfolioRequest_RUB

	var resp interface {
		GetTotalAmountPortfolio() *pb.MoneyValue
		GetTotalAmountCurrencies() *pb.MoneyValue
		GetPositions() []*pb.PortfolioPosition
	}

	if bc.config.IsSandbox() {
		sandbox := bc.Client.NewSandboxServiceClient()
		r, err := sandbox.GetSandboxPortfolio(accountID, currency)
		if err != nil {
			return nil, fmt.Errorf("get sandbox portfolio: %w", err)
		}
		resp = r.PortfolioResponse
	} else {
		ops := bc.Client.NewOperationsServiceClient()
		r, err := ops.GetPortfolio(accountID, currency)
		if err != nil {
			return nil, fmt.Errorf("get portfolio: %w", err)
		}
		resp = r.PortfolioResponse
	}

	info := &PortfolioInfo{
		TotalRub:     moneyToDecimal(resp.GetTotalAmountPortfolio()).InexactFloat64(),
		AvailableRub: moneyToDecimal(resp.GetTotalAmountCurrencies()).InexactFloat64(),
	}

	for _, pos := range resp.GetPositions() {
		if pos.GetInstrumentType() == "currency" {
			continue
		}
		pi := PositionInfo{
			InstrumentUID: pos.GetInstrumentUid(),
			Quantity:      quotationToDecimal(pos.GetQuantity()).InexactFloat64(),
			AvgPrice:      moneyToDecimal(pos.GetAveragePositionPrice()).InexactFloat64(),
			CurrentPrice:  moneyToDecimal(pos.GetCurrentPrice()).InexactFloat64(),
			PnL:           quotationToDecimal(pos.GetExpectedYield()).InexactFloat64(),
			Lot:           1,
		}
		if inst, err := bc.instrumentByUID(pi.InstrumentUID); err == nil {
			pi.Ticker = inst.Ticker
			pi.Lot = inst.Lot
		}
		info.Positions = append(info.Positions, pi)
	}

	return info, nil
}

// AvailableBalance is the free RUB cash of the account.
func (bc *BrokerClient) AvailableBalance(ctx context.Context) (float64, error) {
	portfolio, err := bc.GetPortfolio(ctx)
	if err != nil {
		return 0, err
	}
	return portfolio.AvailableRub, nil
}

// HeldUnits maps tickers to the units the account holds. It fails rather
// than omit a position whose instrument cannot be resolved.
func (bc *BrokerClient) HeldUnits(ctx context.Context) (map[string]float64, error) {
	portfolio, err := bc.GetPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]float64, len(portfolio.Positions))
	for _, p := range portfolio.Positions {
		if p.Ticker == "" {
			return nil, fmt.Errorf("unresolved instrument %s in portfolio", p.InstrumentUID)
		}
		held[p.Ticker] += p.Quantity
	}
	return held, nil
}
