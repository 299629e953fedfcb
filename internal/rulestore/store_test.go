package rulestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func validRule() types.Rule {
	return types.Rule{
		Name: "low-stock",
		Type: types.RuleAlert,
		Conditions: []types.Condition{
			{Field: "quantity", Operator: types.OpLessEqual, Value: types.FieldRef("reorder_point")},
		},
		Actions: []types.Action{
			{Type: types.ActionAlert, Order: 1, Config: map[string]any{"message": "low stock"}},
		},
		Trigger: types.Trigger{Type: types.TriggerAutomatic},
	}
}

func TestMemory_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	created, err := store.Create(ctx, validRule())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, types.RuleDraft, created.Status)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "low-stock", got.Name)

	got.Description = "reorder watcher"
	updated, err := store.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "reorder watcher", updated.Description)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	created, err := store.Create(ctx, validRule())
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	got.Actions[0].Config["message"] = "mutated"

	again, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "low stock", again.Actions[0].Config["message"])
}

func TestActivate_ValidRule(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	created, err := store.Create(ctx, validRule())
	require.NoError(t, err)

	activated, err := Activate(ctx, store, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleActive, activated.Status)
}

func TestActivate_InvalidRuleLandsInError(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	rule := validRule()
	rule.Conditions = nil
	created, err := store.Create(ctx, rule)
	require.NoError(t, err)

	_, err = Activate(ctx, store, created.ID)
	require.ErrorIs(t, err, ErrValidation)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleError, got.Status)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	created, err := store.Create(ctx, validRule())
	require.NoError(t, err)
	_, err = Activate(ctx, store, created.ID)
	require.NoError(t, err)

	deactivated, err := Deactivate(ctx, store, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleInactive, deactivated.Status)
}

func TestValidateForActivation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Rule)
		errMsg string
	}{
		{"missing name", func(r *types.Rule) { r.Name = "" }, "name is required"},
		{"unknown type", func(r *types.Rule) { r.Type = "wizardry" }, "unknown rule type"},
		{"no actions", func(r *types.Rule) { r.Actions = nil }, "at least one action"},
		{"unknown action type", func(r *types.Rule) { r.Actions[0].Type = "teleport" }, "unknown action type"},
		{"alert missing message", func(r *types.Rule) { r.Actions[0].Config = map[string]any{} }, `config key "message"`},
		{"bad cron", func(r *types.Rule) {
			r.Trigger = types.Trigger{Type: types.TriggerScheduled, Cron: "not cron"}
		}, "scheduled trigger"},
		{"event without name", func(r *types.Rule) {
			r.Trigger = types.Trigger{Type: types.TriggerEvent}
		}, "event trigger requires"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := ValidateForActivation(rule)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, ValidateForActivation(validRule()))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(`
rules:
  - name: low-stock
    type: alert
    conditions:
      - field: quantity
        operator: "<="
        value:
          fieldRef: reorder_point
    actions:
      - type: alert
        order: 1
        config:
          message: low stock
    trigger:
      type: automatic
  - name: price-guard
    type: validation
    conditions:
      - field: price
        operator: "<"
        value:
          literal: 0
    actions:
      - type: alert
        order: 1
        config:
          message: negative price
    trigger:
      type: automatic
`), 0o644))

	store := NewMemory()
	n, err := LoadDir(context.Background(), store, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rules, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "low-stock", rules[0].Name)
	assert.True(t, rules[0].Conditions[0].Value.IsFieldRef())
}

func TestLoadDir_InvalidActiveRuleFailsLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
name: broken
type: alert
status: active
conditions: []
actions:
  - type: alert
    order: 1
    config:
      message: hi
trigger:
  type: automatic
`), 0o644))

	_, err := LoadDir(context.Background(), NewMemory(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first, err := Seed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, len(BuiltinRules()), first)

	second, err := Seed(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestBuiltinRules_AllValid(t *testing.T) {
	for _, rule := range BuiltinRules() {
		assert.NoError(t, ValidateForActivation(rule), rule.Name)
	}
}
