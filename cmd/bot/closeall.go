package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camuig/evo-trader/internal/broker"
	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/logger"
)

func newCloseAllCmd(configPath *string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "closeall",
		Short: "Market-sell every broker position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return closeAll(cmd.Context(), *configPath, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show positions without closing")
	return cmd
}

func closeAll(ctx context.Context, configPath string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log := logger.New(cfg.Logging.Level)

	bc, err := broker.NewBrokerClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("broker init error: %w", err)
	}
	defer bc.Stop()

	portfolio, err := bc.GetPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("get portfolio error: %w", err)
	}

	if len(portfolio.Positions) == 0 {
		fmt.Println("No open positions.")
		return nil
	}

	fmt.Printf("Found %d position(s):\n\n", len(portfolio.Positions))
	for _, p := range portfolio.Positions {
		fmt.Printf("  %s: %.0f шт, ср.цена %.2f, текущая %.2f, P&L %.2f\n",
			p.Ticker, p.Quantity, p.AvgPrice, p.CurrentPrice, p.PnL)
	}
	fmt.Println()

	if dryRun {
		fmt.Println("Dry run, no orders placed.")
		return nil
	}

	var closed, failed int
	for _, p := range portfolio.Positions {
		lots := p.Lots()
		if lots <= 0 {
			continue
		}

		uid := p.InstrumentUID
		if uid == "" {
			uid, err = bc.ResolveTickerToUID(p.Ticker)
			if err != nil {
				fmt.Printf("  [FAIL] %s: resolve UID: %v\n", p.Ticker, err)
				failed++
				continue
			}
		}

		result, err := bc.Sell(ctx, uid, lots)
		if err != nil {
			fmt.Printf("  [FAIL] %s: sell: %v\n", p.Ticker, err)
			failed++
			continue
		}

		fmt.Printf("  [OK]   %s: sold %d lots @ %.2f\n", p.Ticker, result.ExecutedLots, result.ExecutedPrice)
		closed++
	}

	fmt.Printf("\nDone: %d closed, %d failed.\n", closed, failed)
	if failed > 0 {
		return fmt.Errorf("%d position(s) failed to close", failed)
	}
	return nil
}
