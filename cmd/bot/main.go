package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "evo-trader",
		Short:         "Evo-Trader - self-evolving MOEX trading engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the trading engine (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath)
		},
	})
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newCloseAllCmd(&configPath))

	return root
}
