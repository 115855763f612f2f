package program

import (
	"fmt"

	"github.com/roach88/vscript/internal/ir"
)

// Direction is the flow direction of a pin.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// PinKind distinguishes execution-flow pins from value pins.
type PinKind uint8

const (
	Control PinKind = iota
	Data
)

func (k PinKind) String() string {
	if k == Data {
		return "data"
	}
	return "control"
}

// PinRef addresses a pin by owning node, direction and port index. Input and
// output ports are numbered independently, in declaration order.
type PinRef struct {
	Node int       `json:"node"`
	Dir  Direction `json:"dir"`
	Port int       `json:"port"`
}

// In returns a reference to input port port of node.
func In(node, port int) PinRef { return PinRef{Node: node, Dir: Input, Port: port} }

// Out returns a reference to output port port of node.
func Out(node, port int) PinRef { return PinRef{Node: node, Dir: Output, Port: port} }

func (r PinRef) String() string {
	return fmt.Sprintf("%d.%s[%d]", r.Node, r.Dir, r.Port)
}

// Pin is a typed connection point on a node.
//
// Type is the declared type; ir.TypeVariant accepts anything. ClassName
// optionally constrains Object pins to a host class. Default is used when a
// Data input is left unconnected. Required inputs must be connected or carry
// a non-nil Default.
type Pin struct {
	Name      string
	Dir       Direction
	Kind      PinKind
	Type      ir.Type
	ClassName string
	Default   ir.Value
	Required  bool

	// adjacency cache, derived from the program's flat connection list
	links []PinRef
}

// Links returns the pins this pin is connected to. The slice is owned by the
// snapshot and must not be modified.
func (p *Pin) Links() []PinRef {
	return p.links
}

// Connected reports whether the pin has at least one link.
func (p *Pin) Connected() bool {
	return len(p.links) > 0
}

// ControlIn declares a control input.
func ControlIn(name string) Pin {
	return Pin{Name: name, Dir: Input, Kind: Control}
}

// ControlOut declares a control output.
func ControlOut(name string) Pin {
	return Pin{Name: name, Dir: Output, Kind: Control}
}

// DataIn declares a data input with a default value. A nil default means
// the zero value of typ.
func DataIn(name string, typ ir.Type, def ir.Value) Pin {
	if def == nil {
		def = ir.Zero(typ)
	}
	return Pin{Name: name, Dir: Input, Kind: Data, Type: typ, Default: def}
}

// DataOut declares a data output.
func DataOut(name string, typ ir.Type) Pin {
	return Pin{Name: name, Dir: Output, Kind: Data, Type: typ}
}

// ResolvedType is the effective type of a pin after considering its
// connections and node-specific narrowing.
type ResolvedType struct {
	Type      ir.Type
	ClassName string
}

func (t ResolvedType) String() string {
	if t.ClassName != "" {
		return fmt.Sprintf("%s(%s)", t.Type, t.ClassName)
	}
	return t.Type.String()
}
