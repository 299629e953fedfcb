// Package ledger records execution history. Entries are appended when an
// execution starts and finalized exactly once; terminal entries are never
// rewritten. Rule statistics are derived from the ledger, not hand-kept.
package ledger

import (
	"context"
	"errors"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// ErrNotFound is returned when an execution id does not exist.
var ErrNotFound = errors.New("ledger: execution not found")

// ErrAlreadyFinal is returned when a finalize targets an execution that is
// already terminal. The first terminal write wins.
var ErrAlreadyFinal = errors.New("ledger: execution already finalized")

// Ledger is the execution history contract.
type Ledger interface {
	// Record appends a new running execution.
	Record(ctx context.Context, exec types.Execution) error
	// Finalize writes the terminal state of an execution.
	Finalize(ctx context.Context, exec types.Execution) error
	Get(ctx context.Context, id string) (types.Execution, error)
	List(ctx context.Context, filter types.ExecutionFilter) ([]types.Execution, error)
	Stats(ctx context.Context, ruleID string) (types.RuleStatistics, error)
}
