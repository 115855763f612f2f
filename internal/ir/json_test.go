package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"nil", Nil{}, `null`},
		{"int", Int(-3), `-3`},
		{"integral float", Float(2), `2.0`},
		{"float", Float(0.1), `0.1`},
		{"inf", Float(math.Inf(1)), `"inf"`},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
		{"nfc", String("é"), "\"é\""},
		{"vector", Vector2i{X: 1, Y: -2}, `[1,-2]`},
		{"color", Color{R: 1, A: 0.5}, `[1.0,0.0,0.0,0.5]`},
		{"packed", PackedInt32Array{1, 2}, `[1,2]`},
		{"dict string keys", NewDictionary(E(String("z"), Int(1)), E(String("a"), Int(2))), `{"z":1,"a":2}`},
		{"dict mixed keys", NewDictionary(E(Int(1), String("x"))), `[[1,"x"]]`},
		{"nodepath", NodePath{Names: []string{"a"}, Subnames: []string{"b"}}, `"a:b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestParseJSONPreservesKeyOrder(t *testing.T) {
	v, err := ParseJSON([]byte(`{"zeta": 1, "alpha": [true, 2.5, null], "mid": "s"}`))
	require.NoError(t, err)

	d, ok := v.(*Dictionary)
	require.True(t, ok)
	require.Equal(t, 3, d.Len())
	assert.Equal(t, String("zeta"), d.Entries()[0].Key)
	assert.Equal(t, Int(1), d.Entries()[0].Value)
	assert.True(t, Equal(Array{Bool(true), Float(2.5), Nil{}}, d.Entries()[1].Value))
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`1 2`))
	assert.Error(t, err)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"b": []any{1, "two", 3.5},
		"a": nil,
	})
	require.NoError(t, err)

	d := v.(*Dictionary)
	assert.Equal(t, String("a"), d.Entries()[0].Key)
	got, _ := d.Get(String("b"))
	assert.True(t, Equal(Array{Int(1), String("two"), Float(3.5)}, got))

	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}
