package broker

import (
	"context"
	"fmt"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

type OrderResult struct {
	OrderID       string
	ExecutedPrice float64 // per unit
	ExecutedLots  int64
	TotalAmount   float64
}

func (bc *BrokerClient) Buy(ctx context.Context, instrumentID string, lots int64) (*OrderResult, error) {
	return bc.postMarketOrder(ctx, instrumentID, lots, pb.OrderDirection_ORDER_DIRECTION_BUY)
}

func (bc *BrokerClient) Sell(ctx context.Context, instrumentID string, lots int64) (*OrderResult, error) {
	return bc.postMarketOrder(ctx, instrumentID, lots, pb.OrderDirection_ORDER_DIRECTION_SELL)
}

func (bc *BrokerClient) postMarketOrder(ctx context.Context, instrumentID string, lots int64, direction pb.OrderDirection) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &investgo.PostOrderRequestShort{
		InstrumentId: instrumentID,
		Quantity:     lots,
		AccountId:    bc.AccountID(),
		OrderType:    pb.OrderType_ORDER_TYPE_MARKET,
		OrderId:      investgo.CreateUid(),
	}

	var resp *investgo.PostOrderResponse
	var err error

	switch {
	case bc.config.IsSandbox():
		sandbox := bc.Client.NewSandboxServiceClient()
		resp, err = sandbox.PostSandboxOrder(&investgo.PostOrderRequest{
			InstrumentId: req.InstrumentId,
			Quantity:     req.Quantity,
			Direction:    direction,
			AccountId:    req.AccountId,
			OrderType:    req.OrderType,
			OrderId:      req.OrderId,
		})
	case direction == pb.OrderDirection_ORDER_DIRECTION_BUY:
		resp, err = bc.Client.NewOrdersServiceClient().Buy(req)
	default:
		resp, err = bc.Client.NewOrdersServiceClient().Sell(req)
	}

	if err != nil {
		return nil, fmt.Errorf("%s order: %w", directionName(direction), err)
	}

	return &OrderResult{
		OrderID:       resp.GetOrderId(),
		ExecutedLots:  resp.GetLotsExecuted(),
		ExecutedPrice: moneyToDecimal(resp.GetExecutedOrderPrice()).InexactFloat64(),
		TotalAmount:   moneyToDecimal(resp.GetTotalOrderAmount()).InexactFloat64(),
	}, nil
}

func directionName(d pb.OrderDirection) string {
	if d == pb.OrderDirection_ORDER_DIRECTION_BUY {
		return "buy"
	}
	return "sell"
}
