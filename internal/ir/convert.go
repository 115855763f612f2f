package ir

import "fmt"

// ConversionError reports a value that cannot flow into a declared type.
type ConversionError struct {
	From Type
	To   Type
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

// CanConvert reports whether a value of type from may flow into a slot of
// type to without loss: identity, Variant on either side, numeric widening,
// integer-vector widening, Nil into Object, and packed arrays into Array.
// Lossy directions (float to int, Array to packed) are never allowed.
func CanConvert(from, to Type) bool {
	if from == to || from == TypeVariant || to == TypeVariant {
		return true
	}
	switch to {
	case TypeFloat:
		return from == TypeInt
	case TypeVector2:
		return from == TypeVector2i
	case TypeVector3:
		return from == TypeVector3i
	case TypeVector4:
		return from == TypeVector4i
	case TypeRect2:
		return from == TypeRect2i
	case TypeObject:
		return from == TypeNil
	case TypeArray:
		return from.IsPacked()
	}
	return false
}

// NeedsCoercion reports whether two resolved types differ. Identity and
// Variant-to-Variant need nothing; every other pairing, widening included,
// needs an explicit coercion step.
func NeedsCoercion(from, to Type) bool {
	return from != to
}

// Convert converts v to type to following CanConvert. Values already of the
// target type, and any value headed for a Variant slot, are returned as-is.
func Convert(v Value, to Type) (Value, error) {
	if v == nil {
		v = Nil{}
	}
	from := v.Type()
	if from == to || to == TypeVariant {
		return v, nil
	}
	if !CanConvert(from, to) {
		return nil, &ConversionError{From: from, To: to}
	}
	switch x := v.(type) {
	case Int:
		return Float(x), nil
	case Vector2i:
		return Vector2{X: float64(x.X), Y: float64(x.Y)}, nil
	case Vector3i:
		return Vector3{X: float64(x.X), Y: float64(x.Y), Z: float64(x.Z)}, nil
	case Vector4i:
		return Vector4{X: float64(x.X), Y: float64(x.Y), Z: float64(x.Z), W: float64(x.W)}, nil
	case Rect2i:
		return Rect2{
			Position: Vector2{X: float64(x.Position.X), Y: float64(x.Position.Y)},
			Size:     Vector2{X: float64(x.Size.X), Y: float64(x.Size.Y)},
		}, nil
	case Nil:
		return Object{}, nil
	}
	if from.IsPacked() {
		return packedToArray(v), nil
	}
	return nil, &ConversionError{From: from, To: to}
}

func packedToArray(v Value) Array {
	var out Array
	switch x := v.(type) {
	case PackedByteArray:
		for _, e := range x {
			out = append(out, Int(e))
		}
	case PackedInt32Array:
		for _, e := range x {
			out = append(out, Int(e))
		}
	case PackedInt64Array:
		for _, e := range x {
			out = append(out, Int(e))
		}
	case PackedFloat32Array:
		for _, e := range x {
			out = append(out, Float(e))
		}
	case PackedFloat64Array:
		for _, e := range x {
			out = append(out, Float(e))
		}
	case PackedStringArray:
		for _, e := range x {
			out = append(out, String(e))
		}
	case PackedVector2Array:
		for _, e := range x {
			out = append(out, e)
		}
	case PackedVector3Array:
		for _, e := range x {
			out = append(out, e)
		}
	case PackedColorArray:
		for _, e := range x {
			out = append(out, e)
		}
	case PackedVector4Array:
		for _, e := range x {
			out = append(out, e)
		}
	}
	if out == nil {
		out = Array{}
	}
	return out
}
