package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stocksentry/stocksentry/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "stocksentry",
		Short: "Rules engine for inventory management",
		Long: `StockSentry evaluates user-defined rules against inventory records and
executes their actions: field updates, alerts, webhooks, emails, and
external function invocations. Rules fire on inventory changes, cron
schedules, named events, or manual triggers.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewServeCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
