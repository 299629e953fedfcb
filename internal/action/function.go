package action

import (
	"context"
	"errors"

	"github.com/stocksentry/stocksentry/internal/funcregistry"
	"github.com/stocksentry/stocksentry/internal/inventory"
	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// FunctionExecutor invokes a registered named function with the record and
// applies the returned fields when the confidence clears the configured
// threshold. Output below threshold is a successful no-op, not a failure.
// Config keys: "name" (required), "threshold" (optional float, default 0).
type FunctionExecutor struct {
	registry *funcregistry.Registry
	inv      inventory.Client
}

// NewFunctionExecutor creates a function executor.
func NewFunctionExecutor(reg *funcregistry.Registry, inv inventory.Client) *FunctionExecutor {
	return &FunctionExecutor{registry: reg, inv: inv}
}

func (e *FunctionExecutor) Type() types.ActionType { return types.ActionFunction }

func (e *FunctionExecutor) Execute(ctx context.Context, rec types.Record, config map[string]any) Result {
	name, err := configString(config, "name")
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}
	threshold, _ := toFloat(config["threshold"])

	invoker, err := e.registry.Get(name)
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}

	out, err := invoker.Invoke(ctx, rec)
	if err != nil {
		var ferr *funcregistry.Error
		if errors.As(err, &ferr) && (ferr.Category == types.FailureTransient || ferr.Category == types.FailureTimeout) {
			metrics.ActionRetries.Add(1)
			out, err = invoker.Invoke(ctx, rec)
		}
		if err != nil {
			return functionFailure(name, err)
		}
	}

	if out.Confidence < threshold {
		return ok(map[string]any{
			"function":   name,
			"confidence": out.Confidence,
			"applied":    false,
		})
	}

	applied := make([]string, 0, len(out.Fields))
	version := rec.Version
	for field, value := range out.Fields {
		working := rec
		working.Version = version
		if err := updateFieldWithRetry(ctx, e.inv, working, field, value); err != nil {
			res := classifyUpdateError(field, err)
			res.Err = "applying output of " + name + ": " + res.Err
			return res
		}
		version++
		applied = append(applied, field)
	}

	return ok(map[string]any{
		"function":   name,
		"confidence": out.Confidence,
		"applied":    true,
		"fields":     applied,
	})
}

func functionFailure(name string, err error) Result {
	var ferr *funcregistry.Error
	if errors.As(err, &ferr) {
		return fail(ferr.Category, "function %q: %v", name, err)
	}
	return fail(types.FailureTransient, "function %q: %v", name, err)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
