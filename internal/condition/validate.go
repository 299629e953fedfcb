package condition

import (
	"fmt"
	"regexp"

	"github.com/stocksentry/stocksentry/pkg/types"
)

var knownOperators = map[types.ConditionOperator]struct{}{
	types.OpEqual: {}, types.OpNotEqual: {},
	types.OpLess: {}, types.OpLessEqual: {},
	types.OpGreater: {}, types.OpGreaterEqual: {},
	types.OpMatches: {}, types.OpIsNull: {},
}

// Validate checks a condition list structurally, without a record. It is
// run at rule-activation time so malformed conditions are reported to the
// operator synchronously instead of surfacing per-record at run time.
func Validate(conds []types.Condition) error {
	if len(conds) == 0 {
		return &Error{Reason: "at least one condition is required"}
	}
	for i, c := range conds {
		if c.Field == "" {
			return &Error{Reason: fmt.Sprintf("condition %d: field is required", i)}
		}
		if _, ok := knownOperators[c.Operator]; !ok {
			return &Error{Field: c.Field, Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
		if c.LogicalOp != "" && c.LogicalOp != types.LogicalAnd && c.LogicalOp != types.LogicalOr {
			return &Error{Field: c.Field, Reason: fmt.Sprintf("unknown logical operator %q", c.LogicalOp)}
		}
		if c.Operator == types.OpMatches && !c.Value.IsFieldRef() {
			pattern, ok := c.Value.Literal.(string)
			if !ok {
				return &Error{Field: c.Field, Reason: "matches value must be a string pattern"}
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return &Error{Field: c.Field, Reason: fmt.Sprintf("invalid pattern %q: %v", pattern, err)}
			}
		}
	}
	return nil
}
