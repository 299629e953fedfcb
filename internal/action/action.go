// Package action implements the side-effect executors dispatched for
// matched records: field updates, alerts, email, webhooks and named
// function invocations.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// Result is the outcome of one action against one record. Executors never
// panic or return Go errors across the orchestrator boundary; all failures
// are captured here.
type Result struct {
	OK       bool
	Detail   map[string]any
	Err      string
	Category types.FailureCategory
}

func ok(detail map[string]any) Result { return Result{OK: true, Detail: detail} }

func fail(category types.FailureCategory, format string, args ...any) Result {
	return Result{OK: false, Category: category, Err: fmt.Sprintf(format, args...)}
}

// Executor runs one kind of action.
type Executor interface {
	Type() types.ActionType
	Execute(ctx context.Context, rec types.Record, config map[string]any) Result
}

// Runner dispatches a record's action chain across the registered
// executors in strict ascending order.
type Runner struct {
	executors map[types.ActionType]Executor
	logger    *slog.Logger
}

// NewRunner creates a runner over the given executors.
func NewRunner(logger *slog.Logger, execs ...Executor) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		executors: make(map[types.ActionType]Executor, len(execs)),
		logger:    logger,
	}
	for _, e := range execs {
		r.executors[e.Type()] = e
	}
	return r
}

// ChainOutcome aggregates one record's pass through its action chain.
type ChainOutcome struct {
	Executed  int
	Failed    int
	Errors    []types.ExecutionError
	Cancelled bool
}

// AllFailed reports whether every executed action failed. Chains where
// nothing ran (cancelled before the first action) do not count as failed.
func (o ChainOutcome) AllFailed() bool {
	return o.Executed > 0 && o.Failed == o.Executed
}

// RunChain executes all actions for one matched record in ascending Order,
// ties broken by declaration index. A failing action never short-circuits
// its successors: one bad webhook must not block an update that keeps
// stock data correct. Cancellation is cooperative: the in-flight action
// finishes, the rest of the chain is skipped.
func (r *Runner) RunChain(ctx context.Context, rec types.Record, actions []types.Action) ChainOutcome {
	var outcome ChainOutcome

	for _, idx := range sortActions(actions) {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			return outcome
		}

		act := actions[idx]
		exec, found := r.executors[act.Type]
		if !found {
			outcome.Executed++
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, types.ExecutionError{
				RecordID:    rec.ID,
				ActionIndex: idx,
				ActionType:  act.Type,
				Category:    types.FailurePermanent,
				Message:     fmt.Sprintf("no executor for action type %q", act.Type),
			})
			continue
		}

		res := safeExecute(ctx, exec, rec, act.Config)
		outcome.Executed++
		metrics.ActionsExecuted.Add(1)

		if !res.OK {
			outcome.Failed++
			metrics.ActionFailures.Add(1)
			outcome.Errors = append(outcome.Errors, types.ExecutionError{
				RecordID:    rec.ID,
				ActionIndex: idx,
				ActionType:  act.Type,
				Category:    res.Category,
				Message:     res.Err,
			})
			r.logger.Warn("action failed",
				"record", rec.ID, "action", string(act.Type), "order", act.Order, "error", res.Err)
		}
	}
	return outcome
}

// safeExecute shields the chain from a panicking executor. A panic is a
// failed action, not a crashed worker.
func safeExecute(ctx context.Context, exec Executor, rec types.Record, config map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = fail(types.FailurePermanent, "action panicked: %v", r)
		}
	}()
	return exec.Execute(ctx, rec, config)
}

// sortActions returns declaration indexes ordered by ascending Order.
// Stable sort keeps declaration order for equal Order values.
func sortActions(actions []types.Action) []int {
	idx := make([]int, len(actions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return actions[idx[a]].Order < actions[idx[b]].Order
	})
	return idx
}

// configString reads a required string key from an action config.
func configString(config map[string]any, key string) (string, error) {
	v, found := config[key]
	if !found {
		return "", fmt.Errorf("config key %q is required", key)
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("config key %q must be a string", key)
	}
	return s, nil
}
