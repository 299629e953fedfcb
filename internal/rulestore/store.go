// Package rulestore persists rule definitions and owns their lifecycle:
// draft, active, inactive, error. Only active rules are ever handed to the
// dispatcher.
package rulestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/stocksentry/stocksentry/internal/condition"
	"github.com/stocksentry/stocksentry/internal/cron"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// ErrNotFound is returned when a rule id does not exist.
var ErrNotFound = errors.New("rulestore: rule not found")

// ErrValidation wraps activation-time validation failures. The rule is
// moved to the error status so operators can see it without tailing logs.
var ErrValidation = errors.New("rulestore: rule failed validation")

// Store is the rule persistence contract. Implementations must hand out
// copies; callers may mutate what they receive.
type Store interface {
	Create(ctx context.Context, rule types.Rule) (types.Rule, error)
	Get(ctx context.Context, id string) (types.Rule, error)
	List(ctx context.Context) ([]types.Rule, error)
	Update(ctx context.Context, rule types.Rule) (types.Rule, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status types.RuleStatus) (types.Rule, error)
}

// Activate validates a rule and transitions it to active. A rule that
// fails validation lands in the error status with the reason returned.
func Activate(ctx context.Context, store Store, id string) (types.Rule, error) {
	rule, err := store.Get(ctx, id)
	if err != nil {
		return types.Rule{}, err
	}
	if err := ValidateForActivation(rule); err != nil {
		if _, serr := store.SetStatus(ctx, id, types.RuleError); serr != nil {
			return types.Rule{}, serr
		}
		return types.Rule{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return store.SetStatus(ctx, id, types.RuleActive)
}

// Deactivate transitions a rule to inactive. Running executions are not
// interrupted; the rule just stops producing new candidates.
func Deactivate(ctx context.Context, store Store, id string) (types.Rule, error) {
	return store.SetStatus(ctx, id, types.RuleInactive)
}

// ValidateForActivation checks the structural requirements a rule must
// meet before it may run. Drafts can be arbitrarily incomplete; activation
// is the gate.
func ValidateForActivation(rule types.Rule) error {
	if rule.Name == "" {
		return errors.New("rule name is required")
	}
	if !rule.Type.Valid() {
		return fmt.Errorf("unknown rule type %q", rule.Type)
	}
	if err := condition.Validate(rule.Conditions); err != nil {
		return err
	}
	if len(rule.Actions) == 0 {
		return errors.New("at least one action is required")
	}
	for i, act := range rule.Actions {
		if err := validateAction(act); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return validateTrigger(rule.Trigger)
}

func validateAction(act types.Action) error {
	required, known := requiredConfigKeys[act.Type]
	if !known {
		return fmt.Errorf("unknown action type %q", act.Type)
	}
	for _, key := range required {
		if _, found := act.Config[key]; !found {
			return fmt.Errorf("%s action requires config key %q", act.Type, key)
		}
	}
	return nil
}

var requiredConfigKeys = map[types.ActionType][]string{
	types.ActionUpdate:   {"field", "value"},
	types.ActionAlert:    {"message"},
	types.ActionEmail:    {"to", "subject"},
	types.ActionWebhook:  {"url"},
	types.ActionFunction: {"name"},
}

func validateTrigger(trig types.Trigger) error {
	switch trig.Type {
	case types.TriggerManual, types.TriggerAutomatic:
		return nil
	case types.TriggerScheduled:
		if trig.Cron == "" {
			return errors.New("scheduled trigger requires a cron expression")
		}
		if _, err := cron.Parse(trig.Cron); err != nil {
			return fmt.Errorf("scheduled trigger: %w", err)
		}
		return nil
	case types.TriggerEvent:
		if trig.Event == "" {
			return errors.New("event trigger requires an event name")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", trig.Type)
	}
}
