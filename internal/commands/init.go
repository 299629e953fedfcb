package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new StockSentry project",
		Long:  "Creates project scaffolding with a starter config and an example rule.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing StockSentry project: %s\n", projectName)

	rulesDir := filepath.Join(projectName, "rules")
	if err := os.MkdirAll(rulesDir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", rulesDir, err)
	}

	configPath := filepath.Join(projectName, "stocksentry.yaml")
	configContent := `storage: memory
server:
  addr: ":8080"
scheduler:
  tickInterval: 1s
  workers: 2
watchdog:
  enabled: true
  interval: 1m
  stuckFor: 10m
ruleDirs:
  - ./rules
alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	rulePath := filepath.Join(rulesDir, "low-stock.yaml")
	ruleContent := `name: low-stock-alert
description: Alert when quantity drops to the reorder point
type: alert
status: active
priority: 10
conditions:
  - field: quantity
    operator: "<="
    value:
      fieldRef: reorder_point
actions:
  - type: alert
    order: 1
    config:
      message: Stock at or below reorder point
      severity: warning
trigger:
  type: automatic
`
	if err := os.WriteFile(rulePath, []byte(ruleContent), 0o644); err != nil {
		return fmt.Errorf("writing example rule: %w", err)
	}

	color.Green("  ✓ Project scaffolded")
	fmt.Println()
	_, _ = bold.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  stocksentry serve")
	return nil
}
