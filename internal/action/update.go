package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/stocksentry/stocksentry/internal/condition"
	"github.com/stocksentry/stocksentry/internal/inventory"
	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// UpdateExecutor writes a single field through the inventory collaborator.
// Config keys: "field" (required), "value" (required; may be a map with a
// "fieldRef" key to copy another field on the same record).
type UpdateExecutor struct {
	inv inventory.Client
}

// NewUpdateExecutor creates an update executor over an inventory client.
func NewUpdateExecutor(inv inventory.Client) *UpdateExecutor {
	return &UpdateExecutor{inv: inv}
}

func (e *UpdateExecutor) Type() types.ActionType { return types.ActionUpdate }

func (e *UpdateExecutor) Execute(ctx context.Context, rec types.Record, config map[string]any) Result {
	field, err := configString(config, "field")
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}
	raw, found := config["value"]
	if !found {
		return fail(types.FailurePermanent, "config key %q is required", "value")
	}

	value, err := resolveUpdateValue(rec, raw)
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}

	if err := updateFieldWithRetry(ctx, e.inv, rec, field, value); err != nil {
		return classifyUpdateError(field, err)
	}
	return ok(map[string]any{"field": field, "value": value})
}

// resolveUpdateValue interprets {"fieldRef": "path"} values as a copy of
// another field on the record; anything else is written as-is.
func resolveUpdateValue(rec types.Record, raw any) (any, error) {
	m, isMap := raw.(map[string]any)
	if !isMap {
		return raw, nil
	}
	path, hasRef := m["fieldRef"].(string)
	if !hasRef {
		return raw, nil
	}
	v, found := condition.Resolve(rec, path)
	if !found {
		return nil, fmt.Errorf("value fieldRef %q does not resolve on record %s", path, rec.ID)
	}
	return v, nil
}

// updateFieldWithRetry writes one field with the version token observed at
// evaluation time, re-reading and retrying exactly once on a conflict.
// Losing the retry too means something is churning the record faster than
// the rule; the caller reports that as a failed action.
func updateFieldWithRetry(ctx context.Context, inv inventory.Client, rec types.Record, field string, value any) error {
	err := inv.UpdateField(ctx, rec.ID, field, value, rec.Version)
	if !errors.Is(err, inventory.ErrVersionConflict) {
		return err
	}

	metrics.ActionRetries.Add(1)
	fresh, err := inv.GetRecords(ctx, types.RecordFilter{IDs: []string{rec.ID}})
	if err != nil {
		return fmt.Errorf("re-reading record after version conflict: %w", err)
	}
	if len(fresh) == 0 {
		return inventory.ErrNotFound
	}
	return inv.UpdateField(ctx, rec.ID, field, value, fresh[0].Version)
}

func classifyUpdateError(field string, err error) Result {
	switch {
	case errors.Is(err, inventory.ErrVersionConflict):
		return fail(types.FailureTransient, "updating %q: version conflict persisted after retry", field)
	case errors.Is(err, inventory.ErrImmutableField):
		return fail(types.FailurePermanent, "updating %q: %v", field, err)
	case errors.Is(err, inventory.ErrNotFound):
		return fail(types.FailurePermanent, "updating %q: %v", field, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fail(types.FailureTimeout, "updating %q: %v", field, err)
	default:
		return fail(types.FailureTransient, "updating %q: %v", field, err)
	}
}
