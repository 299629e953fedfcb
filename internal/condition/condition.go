// Package condition implements the pure left-fold condition evaluator.
package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// Error reports a condition that could not be evaluated against a record,
// naming the field path that failed.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("condition on field %q: %s", e.Field, e.Reason)
}

// Evaluate runs an ordered condition list against a record. Conditions are
// combined strictly left to right: the accumulator starts at the first
// condition's result and each subsequent result is folded in using the
// PREVIOUS condition's logical operator. Mixed AND/OR chains are never
// regrouped by operator type, so [A(AND), B(OR), C] reads (A AND B) OR C.
//
// An empty condition list is a structural defect (active rules carry at
// least one condition) and returns an error rather than a default verdict.
func Evaluate(rec types.Record, conds []types.Condition) (bool, error) {
	if len(conds) == 0 {
		return false, &Error{Reason: "rule has no conditions"}
	}

	acc, err := evalOne(rec, conds[0])
	if err != nil {
		return false, err
	}

	for i := 1; i < len(conds); i++ {
		v, err := evalOne(rec, conds[i])
		if err != nil {
			return false, err
		}
		switch conds[i-1].LogicalOp {
		case types.LogicalOr:
			acc = acc || v
		default: // AND when unset
			acc = acc && v
		}
	}
	return acc, nil
}

func evalOne(rec types.Record, c types.Condition) (bool, error) {
	fieldVal, present := Resolve(rec, c.Field)

	// isNull tolerates absence; every other operator requires resolution.
	if c.Operator == types.OpIsNull {
		return !present || fieldVal == nil, nil
	}
	if !present {
		return false, &Error{Field: c.Field, Reason: "field does not resolve"}
	}

	cmpVal, err := resolveValue(rec, c)
	if err != nil {
		return false, err
	}

	switch c.Operator {
	case types.OpEqual:
		return equal(fieldVal, cmpVal), nil
	case types.OpNotEqual:
		return !equal(fieldVal, cmpVal), nil
	case types.OpLess, types.OpLessEqual, types.OpGreater, types.OpGreaterEqual:
		return compareNumeric(c, fieldVal, cmpVal)
	case types.OpMatches:
		pattern, ok := cmpVal.(string)
		if !ok {
			return false, &Error{Field: c.Field, Reason: "matches value is not a string"}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &Error{Field: c.Field, Reason: fmt.Sprintf("invalid pattern %q: %v", pattern, err)}
		}
		return re.MatchString(fmt.Sprintf("%v", fieldVal)), nil
	default:
		return false, &Error{Field: c.Field, Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
}

// resolveValue materializes the right-hand side: a field reference resolves
// dynamically against the same record (supports quantity <= reorder_point),
// anything else is a literal.
func resolveValue(rec types.Record, c types.Condition) (any, error) {
	if !c.Value.IsFieldRef() {
		return c.Value.Literal, nil
	}
	v, ok := Resolve(rec, c.Value.FieldRef)
	if !ok {
		return nil, &Error{Field: c.Value.FieldRef, Reason: "referenced field does not resolve"}
	}
	return v, nil
}

func compareNumeric(c types.Condition, a, b any) (bool, error) {
	af, ok := toFloat(a)
	if !ok {
		return false, &Error{Field: c.Field, Reason: fmt.Sprintf("left operand %v is not numeric", a)}
	}
	bf, ok := toFloat(b)
	if !ok {
		return false, &Error{Field: c.Field, Reason: fmt.Sprintf("right operand %v is not numeric", b)}
	}
	switch c.Operator {
	case types.OpLess:
		return af < bf, nil
	case types.OpLessEqual:
		return af <= bf, nil
	case types.OpGreater:
		return af > bf, nil
	default:
		return af >= bf, nil
	}
}

// equal is structural equality with numeric widening, so 5 == 5.0 holds
// regardless of how the record was decoded.
func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Resolve walks a dot path ("details.batch.lot") into the record's fields.
func Resolve(rec types.Record, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = rec.Fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
