// Package lifecycle implements the dispatch and execution state machines.
package lifecycle

import (
	"fmt"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// DispatchState is the per-rule scheduling state maintained by the
// dispatcher. A rule is idle until a trigger makes it a candidate; it
// executes at most one batch at a time.
type DispatchState string

const (
	DispatchIdle      DispatchState = "idle"
	DispatchCandidate DispatchState = "candidate"
	DispatchExecuting DispatchState = "executing"
)

// Transition table: from -> allowed tos. Executing may return straight to
// candidate when a trigger arrived mid-execution and the rule is re-queued.
var validDispatch = map[DispatchState][]DispatchState{
	DispatchIdle:      {DispatchCandidate},
	DispatchCandidate: {DispatchExecuting, DispatchIdle},
	DispatchExecuting: {DispatchIdle, DispatchCandidate},
}

// CanDispatch checks if moving between dispatch states is valid.
func CanDispatch(from, to DispatchState) bool {
	for _, s := range validDispatch[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Dispatch validates a dispatch-state transition.
func Dispatch(from, to DispatchState) error {
	if !CanDispatch(from, to) {
		return fmt.Errorf("invalid dispatch transition from %s to %s", from, to)
	}
	return nil
}

var validExecution = map[types.ExecutionStatus][]types.ExecutionStatus{
	types.ExecutionRunning: {types.ExecutionSuccess, types.ExecutionFailed},
	types.ExecutionSuccess: {},
	types.ExecutionFailed:  {},
}

// CanComplete checks if an execution status transition is valid. Terminal
// executions are immutable.
func CanComplete(from, to types.ExecutionStatus) bool {
	for _, s := range validExecution[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the execution status is final.
func IsTerminal(status types.ExecutionStatus) bool {
	return status == types.ExecutionSuccess || status == types.ExecutionFailed
}
