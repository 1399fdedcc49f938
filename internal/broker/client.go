package broker

import (
	"context"
	"fmt"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"

	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/logger"
)

const (
	sandboxEndpoint = "sandbox-invest-public-api.tinkoff.ru:443"
	liveEndpoint    = "invest-public-api.tinkoff.ru:443"
)

// BrokerClient is the Tinkoff Invest gateway. It serves market snapshots,
// the wallet balance and order placement.
type BrokerClient struct {
	Client *investgo.Client
	config *config.Config
	logger *logger.Logger
}

// NewBrokerClient connects to the live or sandbox API. A sandbox run without
// a configured account gets a fresh account topped up to
// tinkoff.sandbox_funding.
func NewBrokerClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*BrokerClient, error) {
	client, err := investgo.NewClient(ctx, investgo.Config{
		EndPoint:  endpointFor(cfg),
		Token:     cfg.Tinkoff.Token,
		AccountId: cfg.Tinkoff.AccountID,
		AppName:   "evo-trader",
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create investgo client: %w", err)
	}

	bc := &BrokerClient{
		Client: client,
		config: cfg,
		logger: log.Named("broker"),
	}

	if cfg.IsSandbox() && cfg.Tinkoff.AccountID == "" {
		if err := bc.fundSandbox(ctx, cfg.Tinkoff.SandboxFunding); err != nil {
			return nil, fmt.Errorf("setup sandbox: %w", err)
		}
	}

	return bc, nil
}

func endpointFor(cfg *config.Config) string {
	if cfg.IsSandbox() {
		return sandboxEndpoint
	}
	return liveEndpoint
}

// fundSandbox pays in the difference between the free cash and target.
func (bc *BrokerClient) fundSandbox(ctx context.Context, target float64) error {
	balance, err := bc.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("sandbox balance: %w", err)
	}
	topUp, ok := sandboxTopUp(balance, target)
	if !ok {
		bc.logger.Info("sandbox account already funded", "balance", balance, "target", target)
		return nil
	}

	_, err = bc.Client.NewSandboxServiceClient().SandboxPayIn(&investgo.SandboxPayInRequest{
		AccountId: bc.AccountID(),
		Currency:  "RUB",
		Unit:      topUp.GetUnits(),
		Nano:      topUp.GetNano(),
	})
	if err != nil {
		return fmt.Errorf("sandbox pay in: %w", err)
	}

	bc.logger.Info("sandbox account funded",
		"account_id", bc.AccountID(), "paid_in", quotationToDecimal(topUp).InexactFloat64())
	return nil
}

// sandboxTopUp is the pay-in that lifts balance to target, if any is needed.
func sandboxTopUp(balance, target float64) (*pb.Quotation, bool) {
	shortfall := decimal.NewFromFloat(target).Sub(decimal.NewFromFloat(balance))
	if !shortfall.IsPositive() {
		return nil, false
	}
	return toQuotation(shortfall.InexactFloat64()), true
}

func (bc *BrokerClient) AccountID() string {
	return bc.Client.Config.AccountId
}

func (bc *BrokerClient) Stop() error {
	return bc.Client.Stop()
}
