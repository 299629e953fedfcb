package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stocksentry/stocksentry/internal/config"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show rules and their execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.loadRules(ctx); err != nil {
		return err
	}

	rules, err := eng.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing rules: %w", err)
	}
	if len(rules) == 0 {
		fmt.Println("No rules defined.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("%-38s %-24s %-10s %-9s %6s %6s %8s\n",
		"ID", "NAME", "STATUS", "TRIGGER", "PRIO", "RUNS", "SUCCESS")

	for _, rule := range rules {
		stats, err := eng.ledger.Stats(ctx, rule.ID)
		if err != nil {
			return fmt.Errorf("statistics for %s: %w", rule.ID, err)
		}
		success := "-"
		if stats.ExecutionCount > 0 {
			success = fmt.Sprintf("%.0f%%", stats.SuccessRate*100)
		}
		fmt.Printf("%-38s %-24s %-19s %-9s %6d %6d %8s\n",
			rule.ID, truncate(rule.Name, 24), statusColor(rule.Status),
			rule.Trigger.Type, rule.Priority, stats.ExecutionCount, success)
		if stats.LastExecutedAt != nil {
			fmt.Printf("%-38s   last run %s\n", "", stats.LastExecutedAt.Format(time.RFC3339))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
