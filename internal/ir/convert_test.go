package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanConvert(t *testing.T) {
	tests := []struct {
		from, to Type
		want     bool
	}{
		{TypeInt, TypeInt, true},
		{TypeInt, TypeFloat, true},
		{TypeFloat, TypeInt, false},
		{TypeString, TypeVariant, true},
		{TypeVariant, TypeVector3, true},
		{TypeVector2i, TypeVector2, true},
		{TypeVector2, TypeVector2i, false},
		{TypeRect2i, TypeRect2, true},
		{TypeNil, TypeObject, true},
		{TypePackedInt32Array, TypeArray, true},
		{TypeArray, TypePackedInt32Array, false},
		{TypeString, TypeNodePath, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanConvert(tt.from, tt.to))
		})
	}
}

func TestNeedsCoercion(t *testing.T) {
	assert.False(t, NeedsCoercion(TypeInt, TypeInt))
	assert.False(t, NeedsCoercion(TypeVariant, TypeVariant))
	assert.True(t, NeedsCoercion(TypeInt, TypeFloat))
	assert.True(t, NeedsCoercion(TypeInt, TypeVariant))
}

func TestConvert(t *testing.T) {
	v, err := Convert(Int(3), TypeFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(3), v)

	v, err = Convert(Vector3i{X: 1, Y: 2, Z: 3}, TypeVector3)
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: 1, Y: 2, Z: 3}, v)

	v, err = Convert(PackedStringArray{"a", "b"}, TypeArray)
	require.NoError(t, err)
	assert.Equal(t, Array{String("a"), String("b")}, v)

	v, err = Convert(nil, TypeObject)
	require.NoError(t, err)
	assert.Equal(t, Object{}, v)

	v, err = Convert(String("keep"), TypeVariant)
	require.NoError(t, err)
	assert.Equal(t, String("keep"), v)

	_, err = Convert(Float(1.5), TypeInt)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, TypeFloat, convErr.From)
	assert.Equal(t, TypeInt, convErr.To)
}
