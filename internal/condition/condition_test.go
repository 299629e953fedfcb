package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func record(fields map[string]any) types.Record {
	return types.Record{ID: "rec-1", Version: 1, Fields: fields}
}

func TestEvaluate_LowStockScenario(t *testing.T) {
	rec := record(map[string]any{"quantity": 5, "reorder_point": 10})
	conds := []types.Condition{
		{Field: "quantity", Operator: types.OpLessEqual, Value: types.FieldRef("reorder_point")},
	}

	matched, err := Evaluate(rec, conds)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluate_PriceValidationScenario(t *testing.T) {
	// price > 0 AND price < cost*10: first condition false short-circuits
	// the AND fold regardless of the second.
	rec := record(map[string]any{"price": -5.0, "cost": 10.0})
	conds := []types.Condition{
		{Field: "price", Operator: types.OpGreater, Value: types.Literal(0), LogicalOp: types.LogicalAnd},
		{Field: "price", Operator: types.OpLess, Value: types.Literal(100)},
	}

	matched, err := Evaluate(rec, conds)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestEvaluate_LeftFoldNoPrecedence(t *testing.T) {
	// [A(OR), B(AND), C] with A=true, B=false, C=false is the fixture
	// where flat left-to-right and operator-precedence grouping diverge:
	//   left-to-right: (true OR false) AND false = false
	//   grouped:       true OR (false AND false) = true
	rec := record(map[string]any{"a": 1, "b": 2, "c": 3})
	conds := []types.Condition{
		{Field: "a", Operator: types.OpEqual, Value: types.Literal(1), LogicalOp: types.LogicalOr},  // true
		{Field: "b", Operator: types.OpEqual, Value: types.Literal(9), LogicalOp: types.LogicalAnd}, // false
		{Field: "c", Operator: types.OpEqual, Value: types.Literal(9)},                              // false
	}

	matched, err := Evaluate(rec, conds)
	require.NoError(t, err)
	assert.False(t, matched, "flat left fold must yield (true OR false) AND false = false")
}

func TestEvaluate_MixedChainLeftToRight(t *testing.T) {
	// [A(AND), B(OR), C] with A=false, B=false, C=true:
	//   left-to-right: (false AND false) OR true = true
	rec := record(map[string]any{"a": 0, "b": 0, "c": 3})
	conds := []types.Condition{
		{Field: "a", Operator: types.OpEqual, Value: types.Literal(1), LogicalOp: types.LogicalAnd},
		{Field: "b", Operator: types.OpEqual, Value: types.Literal(1), LogicalOp: types.LogicalOr},
		{Field: "c", Operator: types.OpEqual, Value: types.Literal(3)},
	}

	matched, err := Evaluate(rec, conds)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluate_Operators(t *testing.T) {
	rec := record(map[string]any{
		"sku":      "WIDGET_01",
		"quantity": 42,
		"price":    9.99,
		"expires":  nil,
	})

	tests := []struct {
		name string
		cond types.Condition
		want bool
	}{
		{"equal numeric widening", types.Condition{Field: "quantity", Operator: types.OpEqual, Value: types.Literal(42.0)}, true},
		{"not equal", types.Condition{Field: "sku", Operator: types.OpNotEqual, Value: types.Literal("GADGET")}, true},
		{"less", types.Condition{Field: "price", Operator: types.OpLess, Value: types.Literal(10)}, true},
		{"greater equal", types.Condition{Field: "quantity", Operator: types.OpGreaterEqual, Value: types.Literal(42)}, true},
		{"matches", types.Condition{Field: "sku", Operator: types.OpMatches, Value: types.Literal(`^[A-Z0-9_-]{3,20}$`)}, true},
		{"isNull on null field", types.Condition{Field: "expires", Operator: types.OpIsNull}, true},
		{"isNull on absent field", types.Condition{Field: "discontinued_at", Operator: types.OpIsNull}, true},
		{"isNull on present field", types.Condition{Field: "sku", Operator: types.OpIsNull}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(rec, []types.Condition{tt.cond})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_DotPath(t *testing.T) {
	rec := record(map[string]any{
		"details": map[string]any{"batch": map[string]any{"lot": "L-7"}},
	})
	conds := []types.Condition{
		{Field: "details.batch.lot", Operator: types.OpEqual, Value: types.Literal("L-7")},
	}

	matched, err := Evaluate(rec, conds)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluate_UnresolvedFieldErrors(t *testing.T) {
	rec := record(map[string]any{"quantity": 5})
	conds := []types.Condition{
		{Field: "missing", Operator: types.OpEqual, Value: types.Literal(1)},
	}

	_, err := Evaluate(rec, conds)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "missing", cerr.Field)
}

func TestEvaluate_NonNumericComparisonErrors(t *testing.T) {
	rec := record(map[string]any{"sku": "WIDGET"})
	conds := []types.Condition{
		{Field: "sku", Operator: types.OpLess, Value: types.Literal(10)},
	}

	_, err := Evaluate(rec, conds)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
}

func TestEvaluate_EmptyConditionsDisallowed(t *testing.T) {
	_, err := Evaluate(record(map[string]any{}), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	err := Validate([]types.Condition{
		{Field: "sku", Operator: types.OpMatches, Value: types.Literal("([unclosed")},
	})
	require.Error(t, err)

	err = Validate([]types.Condition{
		{Field: "quantity", Operator: "~="},
	})
	require.Error(t, err)

	err = Validate(nil)
	require.Error(t, err)

	err = Validate([]types.Condition{
		{Field: "quantity", Operator: types.OpLessEqual, Value: types.FieldRef("reorder_point")},
	})
	require.NoError(t, err)
}
