package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stocksentry/stocksentry/internal/config"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <rule-id>",
		Short: "Execute a rule once against the full inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRule(args[0])
		},
	}
}

func runRule(id string) error {
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

	rule, err := eng.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading rule %s: %w", id, err)
	}
	if rule.Status != types.RuleActive {
		return fmt.Errorf("rule %s is %s, only active rules can run", id, rule.Status)
	}

	exec, err := eng.orch.ExecuteRule(ctx, rule)
	if err != nil {
		return err
	}
	printExecution(rule, exec)
	return nil
}

func printExecution(rule types.Rule, exec types.Execution) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("%s (%s)\n", rule.Name, rule.ID)
	fmt.Printf("  Execution:  %s\n", exec.ID)
	fmt.Printf("  Status:     %s\n", executionColor(exec.Status))
	fmt.Printf("  Processed:  %d\n", exec.RecordsProcessed)
	fmt.Printf("  Affected:   %d\n", exec.RecordsAffected)
	if exec.EndTime != nil {
		fmt.Printf("  Duration:   %s\n", exec.EndTime.Sub(exec.StartTime).Round(time.Millisecond))
	}
	for _, execErr := range exec.Errors {
		fmt.Printf("  %s %s: %s\n", color.RedString("error"), execErr.Category, execErr.Message)
	}
}
