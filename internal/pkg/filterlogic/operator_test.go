package filterlogic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupOperator(t *testing.T) {
	for tok, want := range map[string]Operator{
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "//": OpFloorDiv,
		"%": OpMod, "**": OpPow, "=": OpEq, "<>": OpNe, "!=": OpNe,
		">": OpGt, "<": OpLt, ">=": OpGe, "<=": OpLe, " >= ": OpGe,
	} {
		got, ok := LookupOperator(tok)
		if !ok || got != want {
			t.Errorf("LookupOperator(%q) = %v, %v; want %v", tok, got, ok, want)
		}
	}

	for _, tok := range []string{"", "==", "=>", "!", "^", "and"} {
		if op, ok := LookupOperator(tok); ok {
			t.Errorf("LookupOperator(%q) = %v, want not found", tok, op)
		}
	}
}

func TestOperatorKinds(t *testing.T) {
	for _, op := range []Operator{OpEq, OpNe, OpGt, OpLt, OpGe, OpLe} {
		assert.True(t, op.IsComparison(), op.String())
		assert.False(t, op.IsArithmetic(), op.String())
	}
	for _, op := range []Operator{OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpPow} {
		assert.True(t, op.IsArithmetic(), op.String())
		assert.False(t, op.IsComparison(), op.String())
	}
	assert.False(t, OpInvalid.IsComparison())
	assert.False(t, OpInvalid.IsArithmetic())
}

func TestOperatorCompare(t *testing.T) {
	tests := []struct {
		op          Operator
		left, right string
		want        bool
	}{
		{OpEq, "1", "1.0", true}, // numeric
		{OpEq, "a", "a", true},
		{OpEq, "a", "A", false},
		{OpNe, "", "", false},
		{OpNe, "x", "", true},
		{OpGt, "10", "9", true}, // numeric, not lexical
		{OpGt, "b", "a", true},
		{OpLt, "10", "9", false},
		{OpLt, "abc", "abd", true},
		{OpGe, " 5 ", "5", true},
		{OpLe, "4.9", "5", true},
		{OpLe, "x", "5", false}, // mixed falls back to lexical
	}
	for _, tt := range tests {
		got, err := tt.op.Compare(tt.left, tt.right)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("%q %s %q = %v, want %v", tt.left, tt.op, tt.right, got, tt.want)
		}
	}

	_, err := OpAdd.Compare("1", "2")
	assert.Error(t, err)
}

func TestOperatorEval(t *testing.T) {
	tests := []struct {
		op          Operator
		left, right float64
		want        float64
	}{
		{OpAdd, 2, 3, 5},
		{OpSub, 2, 3, -1},
		{OpMul, 2, 3, 6},
		{OpDiv, 7, 2, 3.5},
		{OpFloorDiv, 7, 2, 3},
		{OpFloorDiv, -7, 2, -4},
		{OpMod, 7, 3, 1},
		{OpMod, -7, 3, 2},
		{OpMod, 7, -3, -2},
		{OpPow, 2, 10, 1024},
	}
	for _, tt := range tests {
		got, err := tt.op.Eval(tt.left, tt.right)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v %s %v", tt.left, tt.op, tt.right)
	}

	for _, op := range []Operator{OpDiv, OpFloorDiv, OpMod} {
		_, err := op.Eval(1, 0)
		assert.ErrorIs(t, err, ErrDivisionByZero, op.String())
	}

	_, err := OpEq.Eval(1, 1)
	assert.Error(t, err)
}

func TestOperatorJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Op Operator `json:"op"`
	}{OpNe})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"<>"}`, string(b))

	var v struct {
		Op Operator `json:"op"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"op":"!="}`), &v))
	assert.Equal(t, OpNe, v.Op)
	assert.Error(t, json.Unmarshal([]byte(`{"op":"=="}`), &v))
}
