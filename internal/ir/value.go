package ir

import (
	"fmt"
	"math"
	"reflect"
)

// Value is a sealed interface over the closed set of runtime value kinds.
// Only the types declared in this file implement it.
type Value interface {
	Type() Type
	value() // Sealed - only these types implement it
}

// Nil is the empty value.
type Nil struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit integer. The binary codec narrows it to int32 on the wire
// when it fits.
type Int int64

// Float is a 64-bit float. The binary codec narrows it to float32 on the
// wire when that is exact.
type Float float64

// String is a UTF-8 string.
type String string

// Vector2 is a 2D vector of reals.
type Vector2 struct{ X, Y float64 }

// Vector2i is a 2D vector of integers.
type Vector2i struct{ X, Y int32 }

// Rect2 is an axis-aligned rectangle of reals.
type Rect2 struct{ Position, Size Vector2 }

// Rect2i is an axis-aligned rectangle of integers.
type Rect2i struct{ Position, Size Vector2i }

// Vector3 is a 3D vector of reals.
type Vector3 struct{ X, Y, Z float64 }

// Vector3i is a 3D vector of integers.
type Vector3i struct{ X, Y, Z int32 }

// Transform2D is a 2x3 affine transform stored as two axes and an origin.
type Transform2D struct{ X, Y, Origin Vector2 }

// Vector4 is a 4D vector of reals.
type Vector4 struct{ X, Y, Z, W float64 }

// Vector4i is a 4D vector of integers.
type Vector4i struct{ X, Y, Z, W int32 }

// Plane is a plane in Hessian normal form.
type Plane struct {
	Normal Vector3
	D      float64
}

// Quaternion is a rotation quaternion.
type Quaternion struct{ X, Y, Z, W float64 }

// AABB is an axis-aligned bounding box.
type AABB struct{ Position, Size Vector3 }

// Basis is a 3x3 matrix stored as rows.
type Basis struct{ Rows [3]Vector3 }

// Transform3D is a basis plus an origin.
type Transform3D struct {
	Basis  Basis
	Origin Vector3
}

// Projection is a 4x4 matrix stored as columns.
type Projection struct{ Columns [4]Vector4 }

// Color is an RGBA color. Always single precision.
type Color struct{ R, G, B, A float32 }

// NodePath addresses a node (Names) and optionally a property path within it
// (Subnames).
type NodePath struct {
	Names    []string
	Subnames []string
	Absolute bool
}

// ObjectKind discriminates object references.
type ObjectKind uint8

const (
	// ObjectEmpty is a null object reference.
	ObjectEmpty ObjectKind = iota
	// ObjectInternal references a sub-object of the same persisted document by id.
	ObjectInternal
	// ObjectExternal references an entry of the document's external table.
	ObjectExternal
	// ObjectHost references a live host object. Never persisted.
	ObjectHost
)

// Object is a reference to another object.
type Object struct {
	Kind  ObjectKind
	Index int
	Host  any
}

// Array is an ordered list of values.
type Array []Value

// DictEntry is one key/value pair of a Dictionary.
type DictEntry struct {
	Key   Value
	Value Value
}

// Dictionary is an insertion-ordered map keyed by Value.
// Use Get and Set; keys are compared with Equal.
type Dictionary struct {
	entries []DictEntry
}

// PackedByteArray is a raw byte buffer.
type PackedByteArray []byte

// PackedInt32Array is a dense int32 array.
type PackedInt32Array []int32

// PackedInt64Array is a dense int64 array.
type PackedInt64Array []int64

// PackedFloat32Array is a dense float32 array.
type PackedFloat32Array []float32

// PackedFloat64Array is a dense float64 array.
type PackedFloat64Array []float64

// PackedStringArray is a dense string array.
type PackedStringArray []string

// PackedVector2Array is a dense Vector2 array.
type PackedVector2Array []Vector2

// PackedVector3Array is a dense Vector3 array.
type PackedVector3Array []Vector3

// PackedColorArray is a dense Color array.
type PackedColorArray []Color

// PackedVector4Array is a dense Vector4 array.
type PackedVector4Array []Vector4

func (Nil) Type() Type                { return TypeNil }
func (Bool) Type() Type               { return TypeBool }
func (Int) Type() Type                { return TypeInt }
func (Float) Type() Type              { return TypeFloat }
func (String) Type() Type             { return TypeString }
func (Vector2) Type() Type            { return TypeVector2 }
func (Vector2i) Type() Type           { return TypeVector2i }
func (Rect2) Type() Type              { return TypeRect2 }
func (Rect2i) Type() Type             { return TypeRect2i }
func (Vector3) Type() Type            { return TypeVector3 }
func (Vector3i) Type() Type           { return TypeVector3i }
func (Transform2D) Type() Type        { return TypeTransform2D }
func (Vector4) Type() Type            { return TypeVector4 }
func (Vector4i) Type() Type           { return TypeVector4i }
func (Plane) Type() Type              { return TypePlane }
func (Quaternion) Type() Type         { return TypeQuaternion }
func (AABB) Type() Type               { return TypeAABB }
func (Basis) Type() Type              { return TypeBasis }
func (Transform3D) Type() Type        { return TypeTransform3D }
func (Projection) Type() Type         { return TypeProjection }
func (Color) Type() Type              { return TypeColor }
func (NodePath) Type() Type           { return TypeNodePath }
func (Object) Type() Type             { return TypeObject }
func (*Dictionary) Type() Type        { return TypeDictionary }
func (Array) Type() Type              { return TypeArray }
func (PackedByteArray) Type() Type    { return TypePackedByteArray }
func (PackedInt32Array) Type() Type   { return TypePackedInt32Array }
func (PackedInt64Array) Type() Type   { return TypePackedInt64Array }
func (PackedFloat32Array) Type() Type { return TypePackedFloat32Array }
func (PackedFloat64Array) Type() Type { return TypePackedFloat64Array }
func (PackedStringArray) Type() Type  { return TypePackedStringArray }
func (PackedVector2Array) Type() Type { return TypePackedVector2Array }
func (PackedVector3Array) Type() Type { return TypePackedVector3Array }
func (PackedColorArray) Type() Type   { return TypePackedColorArray }
func (PackedVector4Array) Type() Type { return TypePackedVector4Array }

func (Nil) value()                {}
func (Bool) value()               {}
func (Int) value()                {}
func (Float) value()              {}
func (String) value()             {}
func (Vector2) value()            {}
func (Vector2i) value()           {}
func (Rect2) value()              {}
func (Rect2i) value()             {}
func (Vector3) value()            {}
func (Vector3i) value()           {}
func (Transform2D) value()        {}
func (Vector4) value()            {}
func (Vector4i) value()           {}
func (Plane) value()              {}
func (Quaternion) value()         {}
func (AABB) value()               {}
func (Basis) value()              {}
func (Transform3D) value()        {}
func (Projection) value()         {}
func (Color) value()              {}
func (NodePath) value()           {}
func (Object) value()             {}
func (*Dictionary) value()        {}
func (Array) value()              {}
func (PackedByteArray) value()    {}
func (PackedInt32Array) value()   {}
func (PackedInt64Array) value()   {}
func (PackedFloat32Array) value() {}
func (PackedFloat64Array) value() {}
func (PackedStringArray) value()  {}
func (PackedVector2Array) value() {}
func (PackedVector3Array) value() {}
func (PackedColorArray) value()   {}
func (PackedVector4Array) value() {}

// NewDictionary creates a dictionary from entries in order. Later duplicates
// overwrite earlier ones in place.
func NewDictionary(entries ...DictEntry) *Dictionary {
	d := &Dictionary{entries: make([]DictEntry, 0, len(entries))}
	for _, e := range entries {
		d.Set(e.Key, e.Value)
	}
	return d
}

// E is a shorthand for DictEntry construction.
// Example: NewDictionary(E(String("hp"), Int(10)))
func E(key, value Value) DictEntry {
	return DictEntry{Key: key, Value: value}
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Entries returns the entries in insertion order. The slice must not be modified.
func (d *Dictionary) Entries() []DictEntry {
	if d == nil {
		return nil
	}
	return d.entries
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key Value) (Value, bool) {
	if d == nil {
		return nil, false
	}
	for _, e := range d.entries {
		if Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Set stores value under key, keeping the original position of an existing key.
func (d *Dictionary) Set(key, value Value) {
	for i, e := range d.entries {
		if Equal(e.Key, key) {
			d.entries[i].Value = value
			return
		}
	}
	d.entries = append(d.entries, DictEntry{Key: key, Value: value})
}

// Delete removes key if present.
func (d *Dictionary) Delete(key Value) {
	for i, e := range d.entries {
		if Equal(e.Key, key) {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// String renders a NodePath in "a/b:c:d" form.
func (p NodePath) String() string {
	s := ""
	if p.Absolute {
		s = "/"
	}
	for i, n := range p.Names {
		if i > 0 {
			s += "/"
		}
		s += n
	}
	for _, sn := range p.Subnames {
		s += ":" + sn
	}
	return s
}

// Zero returns the default value of a declared type. TypeVariant and
// TypeNil both yield Nil.
func Zero(t Type) Value {
	switch t {
	case TypeBool:
		return Bool(false)
	case TypeInt:
		return Int(0)
	case TypeFloat:
		return Float(0)
	case TypeString:
		return String("")
	case TypeVector2:
		return Vector2{}
	case TypeVector2i:
		return Vector2i{}
	case TypeRect2:
		return Rect2{}
	case TypeRect2i:
		return Rect2i{}
	case TypeVector3:
		return Vector3{}
	case TypeVector3i:
		return Vector3i{}
	case TypeTransform2D:
		return Transform2D{X: Vector2{X: 1}, Y: Vector2{Y: 1}}
	case TypeVector4:
		return Vector4{}
	case TypeVector4i:
		return Vector4i{}
	case TypePlane:
		return Plane{}
	case TypeQuaternion:
		return Quaternion{W: 1}
	case TypeAABB:
		return AABB{}
	case TypeBasis:
		return identityBasis()
	case TypeTransform3D:
		return Transform3D{Basis: identityBasis()}
	case TypeProjection:
		return Projection{Columns: [4]Vector4{{X: 1}, {Y: 1}, {Z: 1}, {W: 1}}}
	case TypeColor:
		return Color{A: 1}
	case TypeNodePath:
		return NodePath{}
	case TypeObject:
		return Object{}
	case TypeDictionary:
		return NewDictionary()
	case TypeArray:
		return Array{}
	case TypePackedByteArray:
		return PackedByteArray{}
	case TypePackedInt32Array:
		return PackedInt32Array{}
	case TypePackedInt64Array:
		return PackedInt64Array{}
	case TypePackedFloat32Array:
		return PackedFloat32Array{}
	case TypePackedFloat64Array:
		return PackedFloat64Array{}
	case TypePackedStringArray:
		return PackedStringArray{}
	case TypePackedVector2Array:
		return PackedVector2Array{}
	case TypePackedVector3Array:
		return PackedVector3Array{}
	case TypePackedColorArray:
		return PackedColorArray{}
	case TypePackedVector4Array:
		return PackedVector4Array{}
	default:
		return Nil{}
	}
}

func identityBasis() Basis {
	return Basis{Rows: [3]Vector3{{X: 1}, {Y: 1}, {Z: 1}}}
}

// TypeOf returns v's type, treating a nil interface as Nil.
func TypeOf(v Value) Type {
	if v == nil {
		return TypeNil
	}
	return v.Type()
}

// Equal reports deep structural equality. Scalar floats compare by bit
// pattern so NaN payloads survive round-trip checks.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return TypeOf(a) == TypeNil && TypeOf(b) == TypeNil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Float:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Float)))
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Dictionary:
		bv := b.(*Dictionary)
		if av.Len() != bv.Len() {
			return false
		}
		for i, e := range av.Entries() {
			o := bv.entries[i]
			if !Equal(e.Key, o.Key) || !Equal(e.Value, o.Value) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if av.Kind != bv.Kind || av.Index != bv.Index {
			return false
		}
		if av.Kind == ObjectHost {
			return av.Host == bv.Host
		}
		return true
	case NodePath:
		bv := b.(NodePath)
		return av.Absolute == bv.Absolute && slicesEqual(av.Names, bv.Names) && slicesEqual(av.Subnames, bv.Subnames)
	default:
		if a.Type().IsPacked() {
			// nil and empty packed arrays are the same value
			ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
			if ra.Len() == 0 && rb.Len() == 0 {
				return true
			}
		}
		return reflect.DeepEqual(a, b)
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AsBool returns v as a bool. Panics if v is not a Bool.
func AsBool(v Value) bool {
	b, ok := v.(Bool)
	if !ok {
		panic(fmt.Sprintf("ir: AsBool on %s", TypeOf(v)))
	}
	return bool(b)
}

// AsInt returns v as an int64. Panics if v is not an Int.
func AsInt(v Value) int64 {
	i, ok := v.(Int)
	if !ok {
		panic(fmt.Sprintf("ir: AsInt on %s", TypeOf(v)))
	}
	return int64(i)
}

// AsFloat returns v as a float64. Panics if v is not a Float.
func AsFloat(v Value) float64 {
	f, ok := v.(Float)
	if !ok {
		panic(fmt.Sprintf("ir: AsFloat on %s", TypeOf(v)))
	}
	return float64(f)
}

// AsString returns v as a string. Panics if v is not a String.
func AsString(v Value) string {
	s, ok := v.(String)
	if !ok {
		panic(fmt.Sprintf("ir: AsString on %s", TypeOf(v)))
	}
	return string(s)
}

// Truthy implements the boolean interpretation used by branch conditions
// fed from Variant pins: zero numbers, empty strings and containers, Nil and
// empty objects are false.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, Nil:
		return false
	case Bool:
		return bool(x)
	case Int:
		return x != 0
	case Float:
		return x != 0
	case String:
		return x != ""
	case Array:
		return len(x) > 0
	case *Dictionary:
		return x.Len() > 0
	case Object:
		return x.Kind != ObjectEmpty
	default:
		return true
	}
}
