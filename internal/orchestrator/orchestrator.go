// Package orchestrator runs one rule against one batch of records: it
// evaluates conditions, drives the action chains for matched records, and
// writes the execution to the ledger exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stocksentry/stocksentry/internal/action"
	"github.com/stocksentry/stocksentry/internal/condition"
	"github.com/stocksentry/stocksentry/internal/inventory"
	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

const defaultActionTimeout = 30 * time.Second

// Orchestrator coordinates rule executions. It is safe for concurrent use;
// the dispatcher guarantees at most one in-flight execution per rule, but
// different rules run in parallel through the same orchestrator.
type Orchestrator struct {
	runner        *action.Runner
	ledger        ledger.Ledger
	inv           inventory.Client
	logger        *slog.Logger
	evalWorkers   int
	actionWorkers int
	actionTimeout time.Duration
	now           func() time.Time

	cancels sync.Map
}

// New creates an orchestrator. Zero config values fall back to defaults:
// evaluation workers default to NumCPU, action concurrency to 4.
func New(cfg types.OrchestratorConfig, runner *action.Runner, led ledger.Ledger, inv inventory.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	evalWorkers := cfg.EvalWorkers
	if evalWorkers <= 0 {
		evalWorkers = runtime.NumCPU()
	}
	actionWorkers := cfg.ActionConcurrency
	if actionWorkers <= 0 {
		actionWorkers = 4
	}
	actionTimeout := cfg.ActionTimeout.Std()
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	return &Orchestrator{
		runner:        runner,
		ledger:        led,
		inv:           inv,
		logger:        logger,
		evalWorkers:   evalWorkers,
		actionWorkers: actionWorkers,
		actionTimeout: actionTimeout,
		now:           time.Now,
	}
}

// ExecuteRule fetches the current record set and runs the rule against it.
// Manual and scheduled triggers land here; event triggers carry their own
// batch and call Run directly.
func (o *Orchestrator) ExecuteRule(ctx context.Context, rule types.Rule) (types.Execution, error) {
	batch, err := o.inv.GetRecords(ctx, types.RecordFilter{})
	if err != nil {
		return types.Execution{}, fmt.Errorf("fetching records for rule %s: %w", rule.ID, err)
	}
	return o.Run(ctx, rule, batch)
}

// Records exposes the inventory read used to scope manual runs.
func (o *Orchestrator) Records(ctx context.Context, filter types.RecordFilter) ([]types.Record, error) {
	return o.inv.GetRecords(ctx, filter)
}

// Run executes a rule against a batch. The execution is recorded running
// before any work starts and finalized exactly once, including on panic.
// Cancellation is cooperative: in-flight action chains finish their current
// action, nothing is rolled back, and the execution is marked failed with
// the cancellation noted in its result.
func (o *Orchestrator) Run(ctx context.Context, rule types.Rule, batch []types.Record) (types.Execution, error) {
	exec := types.Execution{
		ID:        ulid.Make().String(),
		RuleID:    rule.ID,
		Status:    types.ExecutionRunning,
		StartTime: o.now(),
	}
	if err := o.ledger.Record(ctx, exec); err != nil {
		return types.Execution{}, fmt.Errorf("recording execution: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancels.Store(exec.ID, cancel)
	defer func() {
		o.cancels.Delete(exec.ID)
		cancel()
	}()

	metrics.ExecutionsTotal.Add(1)
	o.logger.Info("execution started",
		"execution", exec.ID, "rule", rule.ID, "records", len(batch))

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("execution panicked", "execution", exec.ID, "rule", rule.ID, "panic", r)
			exec.Errors = append(exec.Errors, types.ExecutionError{
				Category: types.FailurePermanent,
				Message:  fmt.Sprintf("execution panicked: %v", r),
			})
			o.finalize(&exec, types.ExecutionFailed, map[string]any{"panicked": true})
		}
	}()

	matched, condErrs := o.evaluate(ctx, rule, batch)
	exec.RecordsProcessed = len(batch)
	exec.Errors = append(exec.Errors, condErrs...)

	outcomes := o.runChains(ctx, rule, batch, matched)

	matchedCount, allFailed := summarize(&exec, batch, matched, outcomes)
	exec.RecordsAffected = matchedCount

	result := map[string]any{
		"matched": matchedCount,
	}
	status := types.ExecutionSuccess
	switch {
	case ctx.Err() != nil:
		status = types.ExecutionFailed
		result["cancelled"] = true
		metrics.ExecutionsCancelled.Add(1)
	case allFailed:
		status = types.ExecutionFailed
	}

	o.finalize(&exec, status, result)
	o.logger.Info("execution finished",
		"execution", exec.ID, "rule", rule.ID, "status", string(status),
		"matched", matchedCount, "errors", len(exec.Errors), "durationMs", exec.DurationMs())
	return exec, nil
}

// Cancel requests cooperative cancellation of a running execution. It
// reports whether the execution was found in flight.
func (o *Orchestrator) Cancel(execID string) bool {
	v, found := o.cancels.Load(execID)
	if !found {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// evaluate checks the rule's conditions against every record with bounded
// parallelism. A record whose evaluation errors simply does not match; the
// error is surfaced on the execution rather than aborting the batch.
func (o *Orchestrator) evaluate(ctx context.Context, rule types.Rule, batch []types.Record) ([]bool, []types.ExecutionError) {
	matched := make([]bool, len(batch))
	errs := make([]error, len(batch))

	g := &errgroup.Group{}
	g.SetLimit(o.evalWorkers)
	for i := range batch {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			matched[i], errs[i] = condition.Evaluate(batch[i], rule.Conditions)
			return nil
		})
	}
	_ = g.Wait()

	var condErrs []types.ExecutionError
	for i, err := range errs {
		metrics.RecordsEvaluated.Add(1)
		if err != nil {
			metrics.ConditionErrorsTotal.Add(1)
			condErrs = append(condErrs, types.ExecutionError{
				RecordID: batch[i].ID,
				Category: types.FailurePermanent,
				Message:  fmt.Sprintf("condition evaluation: %v", err),
			})
			continue
		}
		if matched[i] {
			metrics.RecordsMatched.Add(1)
		}
	}
	return matched, condErrs
}

// runChains drives action chains for matched records, bounded by the
// configured action concurrency. Each record's chain gets its own timeout.
func (o *Orchestrator) runChains(ctx context.Context, rule types.Rule, batch []types.Record, matched []bool) map[int]action.ChainOutcome {
	outcomes := make(map[int]action.ChainOutcome)
	var mu sync.Mutex

	sem := semaphore.NewWeighted(int64(o.actionWorkers))
	var wg sync.WaitGroup
	for i := range batch {
		i := i
		if !matched[i] {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			chainCtx, cancel := context.WithTimeout(ctx, o.actionTimeout)
			defer cancel()

			outcome := o.runner.RunChain(chainCtx, batch[i], o.stampedActions(rule))
			if outcome.Cancelled && ctx.Err() == nil {
				outcome.Errors = append(outcome.Errors, types.ExecutionError{
					RecordID: batch[i].ID,
					Category: types.FailureTimeout,
					Message:  "action chain timed out",
				})
			}

			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

// stampedActions copies the rule's actions with the rule id injected into
// alert configs so dispatched alerts are attributable.
func (o *Orchestrator) stampedActions(rule types.Rule) []types.Action {
	out := make([]types.Action, len(rule.Actions))
	for i, act := range rule.Actions {
		out[i] = act
		if act.Type != types.ActionAlert {
			continue
		}
		cfg := make(map[string]any, len(act.Config)+1)
		for k, v := range act.Config {
			cfg[k] = v
		}
		cfg["ruleId"] = rule.ID
		out[i].Config = cfg
	}
	return out
}

// summarize folds chain outcomes into the execution and reports the match
// count and whether every matched record failed every action. An execution
// is only failed outright in that total-loss case; partial failures stay
// visible through the error list on a successful execution.
func summarize(exec *types.Execution, batch []types.Record, matched []bool, outcomes map[int]action.ChainOutcome) (matchedCount int, allFailed bool) {
	allFailed = true
	ranAny := false
	for i := range batch {
		if !matched[i] {
			continue
		}
		matchedCount++
		outcome, ran := outcomes[i]
		if !ran {
			continue
		}
		exec.Errors = append(exec.Errors, outcome.Errors...)
		if outcome.Executed > 0 {
			ranAny = true
			if !outcome.AllFailed() {
				allFailed = false
			}
		}
	}
	if matchedCount == 0 || !ranAny {
		return matchedCount, false
	}
	return matchedCount, allFailed
}

func (o *Orchestrator) finalize(exec *types.Execution, status types.ExecutionStatus, result map[string]any) {
	end := o.now()
	exec.Status = status
	exec.EndTime = &end
	exec.Result = result
	if status == types.ExecutionFailed {
		metrics.ExecutionsFailed.Add(1)
	}

	// Ledger writes use a fresh context so a cancelled execution still
	// lands in history.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.ledger.Finalize(ctx, *exec); err != nil {
		o.logger.Error("finalizing execution", "execution", exec.ID, "error", err)
	}
}
