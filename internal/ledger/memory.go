package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/stocksentry/stocksentry/internal/lifecycle"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// ruleAggregate is the incrementally maintained per-rule rollup. Keeping
// it updated at finalize time makes Stats O(1) no matter how long the
// history grows.
type ruleAggregate struct {
	count     int64
	successes int64
	totalMs   float64
	lastAt    *types.Execution
}

// Memory is an in-process ledger for tests and single-node deployments.
type Memory struct {
	mu         sync.RWMutex
	executions map[string]types.Execution
	order      []string
	aggregates map[string]*ruleAggregate
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		executions: make(map[string]types.Execution),
		aggregates: make(map[string]*ruleAggregate),
	}
}

func (m *Memory) Record(_ context.Context, exec types.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.executions[exec.ID]; exists {
		return fmt.Errorf("ledger: duplicate execution id %s", exec.ID)
	}
	m.executions[exec.ID] = cloneExecution(exec)
	m.order = append(m.order, exec.ID)
	return nil
}

func (m *Memory) Finalize(_ context.Context, exec types.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.executions[exec.ID]
	if !found {
		return ErrNotFound
	}
	if !lifecycle.CanComplete(existing.Status, exec.Status) {
		return ErrAlreadyFinal
	}
	m.executions[exec.ID] = cloneExecution(exec)

	agg, found := m.aggregates[exec.RuleID]
	if !found {
		agg = &ruleAggregate{}
		m.aggregates[exec.RuleID] = agg
	}
	agg.count++
	if exec.Status == types.ExecutionSuccess {
		agg.successes++
	}
	agg.totalMs += exec.DurationMs()
	final := cloneExecution(exec)
	agg.lastAt = &final
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (types.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, found := m.executions[id]
	if !found {
		return types.Execution{}, ErrNotFound
	}
	return cloneExecution(exec), nil
}

// List returns matching executions newest-first.
func (m *Memory) List(_ context.Context, filter types.ExecutionFilter) ([]types.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Execution
	for i := len(m.order) - 1; i >= 0; i-- {
		exec := m.executions[m.order[i]]
		if !matchesFilter(exec, filter) {
			continue
		}
		out = append(out, cloneExecution(exec))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context, ruleID string) (types.RuleStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.RuleStatistics{RuleID: ruleID}
	agg, found := m.aggregates[ruleID]
	if !found || agg.count == 0 {
		return stats, nil
	}
	stats.ExecutionCount = agg.count
	stats.SuccessRate = float64(agg.successes) / float64(agg.count)
	stats.AverageExecutionTimeMs = agg.totalMs / float64(agg.count)
	if agg.lastAt != nil {
		t := agg.lastAt.StartTime
		stats.LastExecutedAt = &t
	}
	return stats, nil
}

func matchesFilter(exec types.Execution, filter types.ExecutionFilter) bool {
	if filter.RuleID != "" && exec.RuleID != filter.RuleID {
		return false
	}
	if filter.Status != "" && exec.Status != filter.Status {
		return false
	}
	if !filter.From.IsZero() && exec.StartTime.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && exec.StartTime.After(filter.To) {
		return false
	}
	return true
}

func cloneExecution(exec types.Execution) types.Execution {
	out := exec
	out.Errors = append([]types.ExecutionError(nil), exec.Errors...)
	if exec.EndTime != nil {
		t := *exec.EndTime
		out.EndTime = &t
	}
	if exec.Result != nil {
		res := make(map[string]any, len(exec.Result))
		for k, v := range exec.Result {
			res[k] = v
		}
		out.Result = res
	}
	return out
}
