package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// Function is a builtin callable from call_builtin nodes.
type Function struct {
	Name   string
	Params []program.Param
	Return ir.Type

	// Pure functions have no side effects; their call nodes carry no control
	// pins and are evaluated on demand.
	Pure bool

	Call func(c *Context, args []ir.Value) (ir.Value, error)
}

// FunctionTable is a registry of builtins. Safe for concurrent use.
type FunctionTable struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// NewFunctionTable returns an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{funcs: make(map[string]*Function)}
}

// Register adds or replaces fn.
func (t *FunctionTable) Register(fn Function) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := fn
	t.funcs[fn.Name] = &f
}

// Lookup returns the function registered under name.
func (t *FunctionTable) Lookup(name string) (*Function, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.funcs[name]
	return f, ok
}

// Names returns the registered names, sorted.
func (t *FunctionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func params(pairs ...any) []program.Param {
	out := make([]program.Param, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, program.Param{Name: pairs[i].(string), Type: pairs[i+1].(ir.Type)})
	}
	return out
}

func mathFunc(name string, fn func(float64) float64) Function {
	return Function{
		Name:   name,
		Params: params("x", ir.TypeFloat),
		Return: ir.TypeFloat,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			return ir.Float(fn(float64(args[0].(ir.Float)))), nil
		},
	}
}

// numeric reports v as float64, and whether it was numeric at all.
func numeric(v ir.Value) (float64, bool) {
	switch x := v.(type) {
	case ir.Int:
		return float64(x), true
	case ir.Float:
		return float64(x), true
	}
	return 0, false
}

func pickNumber(name string, a, b ir.Value, less bool) (ir.Value, error) {
	ai, aInt := a.(ir.Int)
	bi, bInt := b.(ir.Int)
	if aInt && bInt {
		if (ai < bi) == less {
			return ai, nil
		}
		return bi, nil
	}
	af, ok1 := numeric(a)
	bf, ok2 := numeric(b)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%s: expected numbers, got %s and %s", name, ir.TypeOf(a), ir.TypeOf(b))
	}
	if less {
		return ir.Float(math.Min(af, bf)), nil
	}
	return ir.Float(math.Max(af, bf)), nil
}

// DefaultFunctions returns a fresh table with the standard builtins.
func DefaultFunctions() *FunctionTable {
	t := NewFunctionTable()
	t.Register(Function{
		Name:   "abs",
		Params: params("x", ir.TypeVariant),
		Return: ir.TypeVariant,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			switch x := args[0].(type) {
			case ir.Int:
				if x < 0 {
					return -x, nil
				}
				return x, nil
			case ir.Float:
				return ir.Float(math.Abs(float64(x))), nil
			}
			return nil, fmt.Errorf("abs: expected a number, got %s", ir.TypeOf(args[0]))
		},
	})
	t.Register(Function{
		Name:   "min",
		Params: params("a", ir.TypeVariant, "b", ir.TypeVariant),
		Return: ir.TypeVariant,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			return pickNumber("min", args[0], args[1], true)
		},
	})
	t.Register(Function{
		Name:   "max",
		Params: params("a", ir.TypeVariant, "b", ir.TypeVariant),
		Return: ir.TypeVariant,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			return pickNumber("max", args[0], args[1], false)
		},
	})
	t.Register(Function{
		Name:   "clamp",
		Params: params("value", ir.TypeFloat, "min", ir.TypeFloat, "max", ir.TypeFloat),
		Return: ir.TypeFloat,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			v, lo, hi := float64(args[0].(ir.Float)), float64(args[1].(ir.Float)), float64(args[2].(ir.Float))
			return ir.Float(math.Min(math.Max(v, lo), hi)), nil
		},
	})
	t.Register(Function{
		Name:   "lerp",
		Params: params("from", ir.TypeFloat, "to", ir.TypeFloat, "weight", ir.TypeFloat),
		Return: ir.TypeFloat,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			a, b, w := float64(args[0].(ir.Float)), float64(args[1].(ir.Float)), float64(args[2].(ir.Float))
			return ir.Float(a + (b-a)*w), nil
		},
	})
	t.Register(mathFunc("sqrt", math.Sqrt))
	t.Register(mathFunc("floor", math.Floor))
	t.Register(mathFunc("ceil", math.Ceil))
	t.Register(Function{
		Name:   "str",
		Params: params("value", ir.TypeVariant),
		Return: ir.TypeString,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			return ir.String(ir.Stringify(args[0])), nil
		},
	})
	t.Register(Function{
		Name:   "len",
		Params: params("value", ir.TypeVariant),
		Return: ir.TypeInt,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			n, ok := length(args[0])
			if !ok {
				return nil, fmt.Errorf("len: %s has no length", ir.TypeOf(args[0]))
			}
			return ir.Int(n), nil
		},
	})
	t.Register(Function{
		Name:   "typeof",
		Params: params("value", ir.TypeVariant),
		Return: ir.TypeString,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			return ir.String(ir.TypeOf(args[0]).String()), nil
		},
	})
	t.Register(Function{
		Name:   "randi_seeded",
		Params: params("seed", ir.TypeInt, "max", ir.TypeInt),
		Return: ir.TypeInt,
		Pure:   true,
		Call: func(_ *Context, args []ir.Value) (ir.Value, error) {
			seed, n := args[0].(ir.Int), args[1].(ir.Int)
			if n <= 0 {
				return nil, fmt.Errorf("randi_seeded: max must be positive, got %d", n)
			}
			r := rand.New(rand.NewPCG(uint64(seed), 0))
			return ir.Int(r.Int64N(int64(n))), nil
		},
	})
	t.Register(Function{
		Name:   "print",
		Params: params("value", ir.TypeVariant),
		Return: ir.TypeNil,
		Call: func(c *Context, args []ir.Value) (ir.Value, error) {
			c.Print(ir.Stringify(args[0]))
			return ir.Nil{}, nil
		},
	})
	return t
}

// length returns the element count of strings and containers.
func length(v ir.Value) (int, bool) {
	switch x := v.(type) {
	case ir.String:
		return utf8.RuneCountInString(string(x)), true
	case ir.Array:
		return len(x), true
	case *ir.Dictionary:
		return x.Len(), true
	case ir.PackedByteArray:
		return len(x), true
	case ir.PackedInt32Array:
		return len(x), true
	case ir.PackedInt64Array:
		return len(x), true
	case ir.PackedFloat32Array:
		return len(x), true
	case ir.PackedFloat64Array:
		return len(x), true
	case ir.PackedStringArray:
		return len(x), true
	case ir.PackedVector2Array:
		return len(x), true
	case ir.PackedVector3Array:
		return len(x), true
	case ir.PackedColorArray:
		return len(x), true
	case ir.PackedVector4Array:
		return len(x), true
	}
	return 0, false
}
