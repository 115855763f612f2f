package ir

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator names an arithmetic, comparison or logic operation.
type Operator string

const (
	OpAdd Operator = "+"
	OpSub Operator = "-"
	OpMul Operator = "*"
	OpDiv Operator = "/"
	OpMod Operator = "%"
	OpEq  Operator = "=="
	OpNe  Operator = "!="
	OpLt  Operator = "<"
	OpLe  Operator = "<="
	OpGt  Operator = ">"
	OpGe  Operator = ">="
	OpAnd Operator = "and"
	OpOr  Operator = "or"
	OpXor Operator = "xor"
	OpNot Operator = "not"
	OpNeg Operator = "neg"
)

// ErrDivisionByZero is returned for integer division or modulo by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Unary reports whether op takes a single operand.
func (op Operator) Unary() bool {
	return op == OpNot || op == OpNeg
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpAnd, OpOr, OpXor, OpNot, OpNeg:
		return true
	}
	return false
}

// Evaluate applies op to a and b (b is ignored for unary operators).
// Int and Float operands promote to Float when mixed.
func Evaluate(op Operator, a, b Value) (Value, error) {
	if a == nil {
		a = Nil{}
	}
	if b == nil {
		b = Nil{}
	}
	switch op {
	case OpEq:
		return Bool(equalPromoted(a, b)), nil
	case OpNe:
		return Bool(!equalPromoted(a, b)), nil
	case OpAnd:
		return Bool(Truthy(a) && Truthy(b)), nil
	case OpOr:
		return Bool(Truthy(a) || Truthy(b)), nil
	case OpXor:
		return Bool(Truthy(a) != Truthy(b)), nil
	case OpNot:
		return Bool(!Truthy(a)), nil
	case OpNeg:
		return negate(a)
	case OpLt, OpLe, OpGt, OpGe:
		return compare(op, a, b)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return arithmetic(op, a, b)
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func equalPromoted(a, b Value) bool {
	if a.Type().IsNumeric() && b.Type().IsNumeric() && a.Type() != b.Type() {
		return toFloat(a) == toFloat(b)
	}
	return Equal(a, b)
}

func toFloat(v Value) float64 {
	switch x := v.(type) {
	case Int:
		return float64(x)
	case Float:
		return float64(x)
	}
	return math.NaN()
}

func negate(a Value) (Value, error) {
	switch x := a.(type) {
	case Int:
		return -x, nil
	case Float:
		return -x, nil
	case Vector2:
		return Vector2{X: -x.X, Y: -x.Y}, nil
	case Vector3:
		return Vector3{X: -x.X, Y: -x.Y, Z: -x.Z}, nil
	case Vector4:
		return Vector4{X: -x.X, Y: -x.Y, Z: -x.Z, W: -x.W}, nil
	}
	return nil, invalidOperands(OpNeg, a, Nil{})
}

func compare(op Operator, a, b Value) (Value, error) {
	var c int
	switch {
	case a.Type() == TypeInt && b.Type() == TypeInt:
		c = cmpOrdered(a.(Int), b.(Int))
	case a.Type().IsNumeric() && b.Type().IsNumeric():
		c = cmpOrdered(toFloat(a), toFloat(b))
	case a.Type() == TypeString && b.Type() == TypeString:
		c = strings.Compare(string(a.(String)), string(b.(String)))
	default:
		return nil, invalidOperands(op, a, b)
	}
	switch op {
	case OpLt:
		return Bool(c < 0), nil
	case OpLe:
		return Bool(c <= 0), nil
	case OpGt:
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func cmpOrdered[T Int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func arithmetic(op Operator, a, b Value) (Value, error) {
	switch {
	case a.Type() == TypeInt && b.Type() == TypeInt:
		return intArithmetic(op, int64(a.(Int)), int64(b.(Int)))
	case a.Type().IsNumeric() && b.Type().IsNumeric():
		return floatArithmetic(op, toFloat(a), toFloat(b))
	case op == OpAdd && a.Type() == TypeString && b.Type() == TypeString:
		return a.(String) + b.(String), nil
	case op == OpAdd && a.Type() == TypeArray && b.Type() == TypeArray:
		out := make(Array, 0, len(a.(Array))+len(b.(Array)))
		return append(append(out, a.(Array)...), b.(Array)...), nil
	}
	if v, ok := vectorArithmetic(op, a, b); ok {
		return v, nil
	}
	return nil, invalidOperands(op, a, b)
}

func intArithmetic(op Operator, a, b int64) (Value, error) {
	switch op {
	case OpAdd:
		return Int(a + b), nil
	case OpSub:
		return Int(a - b), nil
	case OpMul:
		return Int(a * b), nil
	case OpDiv:
		if b == 0 {
			return nil, ErrDivisionByZero
		}
		return Int(a / b), nil
	default:
		if b == 0 {
			return nil, ErrDivisionByZero
		}
		return Int(a % b), nil
	}
}

func floatArithmetic(op Operator, a, b float64) (Value, error) {
	switch op {
	case OpAdd:
		return Float(a + b), nil
	case OpSub:
		return Float(a - b), nil
	case OpMul:
		return Float(a * b), nil
	case OpDiv:
		return Float(a / b), nil
	default:
		return Float(math.Mod(a, b)), nil
	}
}

func vectorArithmetic(op Operator, a, b Value) (Value, bool) {
	if op == OpMod {
		return nil, false
	}
	apply := func(x, y float64) float64 {
		switch op {
		case OpAdd:
			return x + y
		case OpSub:
			return x - y
		case OpMul:
			return x * y
		default:
			return x / y
		}
	}
	switch x := a.(type) {
	case Vector2:
		switch y := b.(type) {
		case Vector2:
			return Vector2{X: apply(x.X, y.X), Y: apply(x.Y, y.Y)}, true
		case Int, Float:
			s := toFloat(y)
			return Vector2{X: apply(x.X, s), Y: apply(x.Y, s)}, true
		}
	case Vector3:
		switch y := b.(type) {
		case Vector3:
			return Vector3{X: apply(x.X, y.X), Y: apply(x.Y, y.Y), Z: apply(x.Z, y.Z)}, true
		case Int, Float:
			s := toFloat(y)
			return Vector3{X: apply(x.X, s), Y: apply(x.Y, s), Z: apply(x.Z, s)}, true
		}
	case Vector4:
		switch y := b.(type) {
		case Vector4:
			return Vector4{X: apply(x.X, y.X), Y: apply(x.Y, y.Y), Z: apply(x.Z, y.Z), W: apply(x.W, y.W)}, true
		case Int, Float:
			s := toFloat(y)
			return Vector4{X: apply(x.X, s), Y: apply(x.Y, s), Z: apply(x.Z, s), W: apply(x.W, s)}, true
		}
	}
	return nil, false
}

func invalidOperands(op Operator, a, b Value) error {
	return fmt.Errorf("invalid operands %s and %s for operator %q", a.Type(), b.Type(), op)
}

// Stringify renders v for printing. Containers render their elements
// recursively.
func Stringify(v Value) string {
	switch x := v.(type) {
	case nil, Nil:
		return "<null>"
	case Bool:
		return strconv.FormatBool(bool(x))
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return formatReal(float64(x))
	case String:
		return string(x)
	case Vector2:
		return fmt.Sprintf("(%s, %s)", formatReal(x.X), formatReal(x.Y))
	case Vector2i:
		return fmt.Sprintf("(%d, %d)", x.X, x.Y)
	case Vector3:
		return fmt.Sprintf("(%s, %s, %s)", formatReal(x.X), formatReal(x.Y), formatReal(x.Z))
	case Vector3i:
		return fmt.Sprintf("(%d, %d, %d)", x.X, x.Y, x.Z)
	case Vector4:
		return fmt.Sprintf("(%s, %s, %s, %s)", formatReal(x.X), formatReal(x.Y), formatReal(x.Z), formatReal(x.W))
	case Vector4i:
		return fmt.Sprintf("(%d, %d, %d, %d)", x.X, x.Y, x.Z, x.W)
	case Color:
		return fmt.Sprintf("(%s, %s, %s, %s)",
			formatReal(float64(x.R)), formatReal(float64(x.G)), formatReal(float64(x.B)), formatReal(float64(x.A)))
	case NodePath:
		return x.String()
	case Object:
		switch x.Kind {
		case ObjectEmpty:
			return "<null>"
		case ObjectHost:
			if s, ok := x.Host.(fmt.Stringer); ok {
				return s.String()
			}
			return fmt.Sprintf("<Object#%p>", x.Host)
		default:
			return fmt.Sprintf("<Object#%d>", x.Index)
		}
	case Array:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Stringify(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Dictionary:
		parts := make([]string, 0, x.Len())
		for _, e := range x.Entries() {
			parts = append(parts, Stringify(e.Key)+": "+Stringify(e.Value))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatReal(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
