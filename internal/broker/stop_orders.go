package broker

import (
	"context"
	"fmt"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

func (bc *BrokerClient) PlaceStopLoss(ctx context.Context, instrumentID string, lots int64, stopPrice float64) (string, error) {
	return bc.postStopOrder(ctx, instrumentID, lots, stopPrice, pb.StopOrderType_STOP_ORDER_TYPE_STOP_LOSS)
}

func (bc *BrokerClient) PlaceTakeProfit(ctx context.Context, instrumentID string, lots int64, targetPrice float64) (string, error) {
	return bc.postStopOrder(ctx, instrumentID, lots, targetPrice, pb.StopOrderType_STOP_ORDER_TYPE_TAKE_PROFIT)
}

func (bc *BrokerClient) postStopOrder(ctx context.Context, instrumentID string, lots int64, price float64, kind pb.StopOrderType) (string, error) {
	if bc.config.IsSandbox() {
		// Stop orders are not supported in sandbox
		bc.logger.Info("stop order skipped in sandbox mode", "instrument", instrumentID, "type", kind.String(), "price", price)
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stopOrders := bc.Client.NewStopOrdersServiceClient()
	resp, err := stopOrders.PostStopOrder(&investgo.PostStopOrderRequest{
		InstrumentId:   instrumentID,
		Quantity:       lots,
		StopPrice:      toQuotation(price),
		Direction:      pb.StopOrderDirection_STOP_ORDER_DIRECTION_SELL,
		AccountId:      bc.AccountID(),
		ExpirationType: pb.StopOrderExpirationType_STOP_ORDER_EXPIRATION_TYPE_GOOD_TILL_CANCEL,
		StopOrderType:  kind,
		OrderID:        investgo.CreateUid(),
	})
	if err != nil {
		return "", fmt.Errorf("place %s: %w", kind.String(), err)
	}

	return resp.GetStopOrderId(), nil
}

// CancelStopOrders cancels both legs; empty ids are ignored and failures only logged.
func (bc *BrokerClient) CancelStopOrders(ctx context.Context, slOrderID, tpOrderID string) {
	if bc.config.IsSandbox() {
		return
	}

	stopOrders := bc.Client.NewStopOrdersServiceClient()
	for _, id := range []string{slOrderID, tpOrderID} {
		if id == "" || ctx.Err() != nil {
			continue
		}
		if _, err := stopOrders.CancelStopOrder(bc.AccountID(), id); err != nil {
			bc.logger.Error("cancel stop order", "order_id", id, "error", err)
		}
	}
}
