package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		a, b Value
		want Value
	}{
		{"int add", OpAdd, Int(2), Int(3), Int(5)},
		{"int div truncates", OpDiv, Int(7), Int(2), Int(3)},
		{"int mod", OpMod, Int(7), Int(3), Int(1)},
		{"mixed promotes", OpMul, Int(2), Float(1.5), Float(3)},
		{"float mod", OpMod, Float(5.5), Float(2), Float(1.5)},
		{"string concat", OpAdd, String("ab"), String("cd"), String("abcd")},
		{"array concat", OpAdd, Array{Int(1)}, Array{Int(2)}, Array{Int(1), Int(2)}},
		{"vector add", OpAdd, Vector2{X: 1, Y: 2}, Vector2{X: 3, Y: 4}, Vector2{X: 4, Y: 6}},
		{"vector scale", OpMul, Vector3{X: 1, Y: 2, Z: 3}, Int(2), Vector3{X: 2, Y: 4, Z: 6}},
		{"neg", OpNeg, Int(4), nil, Int(-4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.op, tt.a, tt.b)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestEvaluateComparisonAndLogic(t *testing.T) {
	tests := []struct {
		op   Operator
		a, b Value
		want bool
	}{
		{OpEq, Int(1), Float(1), true},
		{OpNe, String("a"), String("b"), true},
		{OpLt, Int(1), Int(2), true},
		{OpGe, Float(2), Int(2), true},
		{OpGt, String("b"), String("a"), true},
		{OpLe, Int(3), Int(2), false},
		{OpAnd, Bool(true), Int(0), false},
		{OpOr, Bool(false), String("x"), true},
		{OpXor, Bool(true), Bool(true), false},
		{OpNot, Bool(false), nil, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := Evaluate(tt.op, tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, Bool(tt.want), got)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate(OpDiv, Int(1), Int(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Evaluate(OpSub, String("a"), Int(1))
	assert.ErrorContains(t, err, "invalid operands")

	_, err = Evaluate(OpLt, Vector2{}, Vector2{})
	assert.Error(t, err)

	_, err = Evaluate(Operator("**"), Int(1), Int(1))
	assert.ErrorContains(t, err, "unknown operator")
	assert.False(t, Operator("**").Valid())
	assert.True(t, OpNot.Unary())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "<null>", Stringify(nil))
	assert.Equal(t, "42", Stringify(Int(42)))
	assert.Equal(t, "2", Stringify(Float(2)))
	assert.Equal(t, "2.5", Stringify(Float(2.5)))
	assert.Equal(t, "(1, 2.5)", Stringify(Vector2{X: 1, Y: 2.5}))
	assert.Equal(t, "[1, hi]", Stringify(Array{Int(1), String("hi")}))
	assert.Equal(t, "{a: true}", Stringify(NewDictionary(E(String("a"), Bool(true)))))
	assert.Equal(t, "<Object#3>", Stringify(Object{Kind: ObjectInternal, Index: 3}))
}
