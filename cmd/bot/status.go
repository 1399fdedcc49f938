package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/storage"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last persisted cycle and open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), *configPath)
		},
	}
}

func showStatus(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	db, err := storage.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	repo := storage.NewRepository(db)

	last, err := repo.LatestCycle(ctx)
	if err != nil {
		return fmt.Errorf("load last cycle: %w", err)
	}
	if last == nil {
		fmt.Println("No cycles recorded yet.")
	} else {
		fmt.Printf("Last cycle %s at %s\n  %s\n", last.ID, last.StartedAt.Format("2006-01-02 15:04:05"), last.Summary())
		for _, e := range last.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}

	if pnl, err := repo.GetTodayPnL(ctx); err == nil {
		fmt.Printf("\nP&L за сегодня: %+.2f ₽\n", pnl)
	}

	if p, err := repo.LatestPersonality(ctx); err == nil && p != nil {
		fmt.Printf("\nPersonality: risk %.2f, aggression %.2f, exploration %.2f, threshold %.2f\n",
			p.RiskTolerance, p.Aggressiveness, p.ExplorationRate, p.ConfidenceThreshold)
	}

	if trades, err := repo.GetRecentTrades(ctx, 10); err == nil && len(trades) > 0 {
		fmt.Println("\nRecent trades:")
		for _, t := range trades {
			fmt.Printf("  %s %-4s %s @ %.2f, P&L %+.2f\n",
				t.CreatedAt.Format("01-02 15:04"), t.Action, t.AssetID, t.Price, t.PnL)
		}
	}

	positions, err := repo.LatestPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	if len(positions) == 0 {
		fmt.Println("\nNo open positions.")
		return nil
	}
	fmt.Printf("\nOpen positions (%d):\n", len(positions))
	for _, p := range positions {
		fmt.Printf("  %s: %.0f шт, вход %.2f, текущая %.2f, P&L %+.2f%%\n",
			p.AssetID, p.Units, p.EntryPrice, p.CurrentPrice, p.ChangePercent())
	}
	return nil
}
