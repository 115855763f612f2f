package ir

import "fmt"

// Type identifies the kind of a Value, and doubles as the declared type of a
// pin. TypeVariant is only ever a declared type: it accepts any value.
type Type uint8

const (
	TypeNil Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeVector2
	TypeVector2i
	TypeRect2
	TypeRect2i
	TypeVector3
	TypeVector3i
	TypeTransform2D
	TypeVector4
	TypeVector4i
	TypePlane
	TypeQuaternion
	TypeAABB
	TypeBasis
	TypeTransform3D
	TypeProjection
	TypeColor
	TypeNodePath
	TypeObject
	TypeDictionary
	TypeArray
	TypePackedByteArray
	TypePackedInt32Array
	TypePackedInt64Array
	TypePackedFloat32Array
	TypePackedFloat64Array
	TypePackedStringArray
	TypePackedVector2Array
	TypePackedVector3Array
	TypePackedColorArray
	TypePackedVector4Array

	// TypeVariant is the "any" declared type.
	TypeVariant Type = 255
)

// typeCount is the number of concrete value types.
const typeCount = int(TypePackedVector4Array) + 1

var typeNames = [...]string{
	TypeNil:                "Nil",
	TypeBool:               "bool",
	TypeInt:                "int",
	TypeFloat:              "float",
	TypeString:             "String",
	TypeVector2:            "Vector2",
	TypeVector2i:           "Vector2i",
	TypeRect2:              "Rect2",
	TypeRect2i:             "Rect2i",
	TypeVector3:            "Vector3",
	TypeVector3i:           "Vector3i",
	TypeTransform2D:        "Transform2D",
	TypeVector4:            "Vector4",
	TypeVector4i:           "Vector4i",
	TypePlane:              "Plane",
	TypeQuaternion:         "Quaternion",
	TypeAABB:               "AABB",
	TypeBasis:              "Basis",
	TypeTransform3D:        "Transform3D",
	TypeProjection:         "Projection",
	TypeColor:              "Color",
	TypeNodePath:           "NodePath",
	TypeObject:             "Object",
	TypeDictionary:         "Dictionary",
	TypeArray:              "Array",
	TypePackedByteArray:    "PackedByteArray",
	TypePackedInt32Array:   "PackedInt32Array",
	TypePackedInt64Array:   "PackedInt64Array",
	TypePackedFloat32Array: "PackedFloat32Array",
	TypePackedFloat64Array: "PackedFloat64Array",
	TypePackedStringArray:  "PackedStringArray",
	TypePackedVector2Array: "PackedVector2Array",
	TypePackedVector3Array: "PackedVector3Array",
	TypePackedColorArray:   "PackedColorArray",
	TypePackedVector4Array: "PackedVector4Array",
}

// String returns the canonical type name.
func (t Type) String() string {
	if t == TypeVariant {
		return "Variant"
	}
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is a concrete value type or TypeVariant.
func (t Type) Valid() bool {
	return t == TypeVariant || int(t) < typeCount
}

// IsNumeric reports whether t is int or float.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// IsPacked reports whether t is one of the fixed-element-width array types.
func (t Type) IsPacked() bool {
	return t >= TypePackedByteArray && t <= TypePackedVector4Array
}

// ParseType resolves a type name as produced by Type.String.
func ParseType(name string) (Type, error) {
	if name == "Variant" || name == "any" {
		return TypeVariant, nil
	}
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return TypeNil, fmt.Errorf("unknown type name %q", name)
}
