package rulestore

import (
	"context"
	"fmt"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// BuiltinRules returns the starter rule set shipped with the engine. They
// are created inactive so operators opt in per deployment.
func BuiltinRules() []types.Rule {
	return []types.Rule{
		{
			Name:        "low-stock-alert",
			Description: "Alert when quantity falls to or below the reorder point.",
			Type:        types.RuleAlert,
			Status:      types.RuleInactive,
			Priority:    10,
			Conditions: []types.Condition{
				{Field: "quantity", Operator: types.OpLessEqual, Value: types.FieldRef("reorder_point")},
			},
			Actions: []types.Action{
				{Type: types.ActionAlert, Order: 1, Config: map[string]any{
					"message":  "stock at or below reorder point",
					"severity": "warning",
				}},
			},
			Trigger: types.Trigger{Type: types.TriggerAutomatic},
		},
		{
			Name:        "out-of-stock-flag",
			Description: "Flag records with zero quantity and raise a critical alert.",
			Type:        types.RuleBusinessLogic,
			Status:      types.RuleInactive,
			Priority:    5,
			Conditions: []types.Condition{
				{Field: "quantity", Operator: types.OpLessEqual, Value: types.Literal(0)},
			},
			Actions: []types.Action{
				{Type: types.ActionUpdate, Order: 1, Config: map[string]any{
					"field": "status", "value": "out_of_stock",
				}},
				{Type: types.ActionAlert, Order: 2, Config: map[string]any{
					"message":  "item is out of stock",
					"severity": "critical",
				}},
			},
			Trigger: types.Trigger{Type: types.TriggerAutomatic},
		},
		{
			Name:        "negative-price-guard",
			Description: "Catch records whose price went negative.",
			Type:        types.RuleValidation,
			Status:      types.RuleInactive,
			Priority:    1,
			Conditions: []types.Condition{
				{Field: "price", Operator: types.OpLess, Value: types.Literal(0)},
			},
			Actions: []types.Action{
				{Type: types.ActionAlert, Order: 1, Config: map[string]any{
					"message":  "price is negative",
					"severity": "critical",
				}},
			},
			Trigger: types.Trigger{Type: types.TriggerAutomatic},
		},
		{
			Name:        "nightly-stale-check",
			Description: "Nightly sweep for records never updated by upstream sync.",
			Type:        types.RuleValidation,
			Status:      types.RuleInactive,
			Priority:    50,
			Conditions: []types.Condition{
				{Field: "last_synced_at", Operator: types.OpIsNull},
			},
			Actions: []types.Action{
				{Type: types.ActionAlert, Order: 1, Config: map[string]any{
					"message":  "record has never synced",
					"severity": "info",
				}},
			},
			Trigger: types.Trigger{Type: types.TriggerScheduled, Cron: "0 2 * * *"},
		},
	}
}

// Seed creates the built-in rules in a store, skipping any whose name is
// already present.
func Seed(ctx context.Context, store Store) (int, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		taken[r.Name] = struct{}{}
	}

	created := 0
	for _, rule := range BuiltinRules() {
		if _, found := taken[rule.Name]; found {
			continue
		}
		if _, err := store.Create(ctx, rule); err != nil {
			return created, fmt.Errorf("seeding %q: %w", rule.Name, err)
		}
		created++
	}
	return created, nil
}
