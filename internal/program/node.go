package program

import (
	"maps"
	"slices"

	"github.com/roach88/vscript/internal/ir"
)

// NodeFlags is a bit set of per-node editor and runtime flags.
type NodeFlags uint32

const (
	// FlagBreakpoint suspends the chain before the node steps when a
	// debugger is attached.
	FlagBreakpoint NodeFlags = 1 << iota
	// FlagCatalogable lists the node in the editor's node catalog.
	FlagCatalogable
)

// Has reports whether every bit of f is set.
func (n NodeFlags) Has(f NodeFlags) bool {
	return n&f == f
}

// Node is a unit of behavior with ordered pins. Kind selects the behavior
// bound at instantiation; Props carries kind-specific configuration such as
// the signal name of an emit node or the operator of an operator node.
type Node struct {
	ID            int
	Kind          string
	Inputs        []Pin
	Outputs       []Pin
	Flags         NodeFlags
	SchemaVersion int
	Props         map[string]ir.Value
	Position      ir.Vector2
}

// Pin returns the pin at ref's direction and port.
func (n *Node) Pin(dir Direction, port int) (*Pin, bool) {
	pins := n.Inputs
	if dir == Output {
		pins = n.Outputs
	}
	if port < 0 || port >= len(pins) {
		return nil, false
	}
	return &pins[port], true
}

// PortByName returns the port index of the named pin in dir.
func (n *Node) PortByName(dir Direction, name string) (int, bool) {
	pins := n.Inputs
	if dir == Output {
		pins = n.Outputs
	}
	for i := range pins {
		if pins[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Pure reports whether the node has no control pins. Pure nodes are
// evaluated on demand rather than stepped.
func (n *Node) Pure() bool {
	for i := range n.Inputs {
		if n.Inputs[i].Kind == Control {
			return false
		}
	}
	for i := range n.Outputs {
		if n.Outputs[i].Kind == Control {
			return false
		}
	}
	return true
}

// ControlOutputs returns the output port indices of control pins, in order.
// A step's exit index addresses this list.
func (n *Node) ControlOutputs() []int {
	var out []int
	for i := range n.Outputs {
		if n.Outputs[i].Kind == Control {
			out = append(out, i)
		}
	}
	return out
}

// DataInputs returns the input port indices of data pins, in order.
func (n *Node) DataInputs() []int {
	var out []int
	for i := range n.Inputs {
		if n.Inputs[i].Kind == Data {
			out = append(out, i)
		}
	}
	return out
}

// DataOutputs returns the output port indices of data pins, in order.
func (n *Node) DataOutputs() []int {
	var out []int
	for i := range n.Outputs {
		if n.Outputs[i].Kind == Data {
			out = append(out, i)
		}
	}
	return out
}

// Prop returns a property value, or nil.
func (n *Node) Prop(key string) ir.Value {
	if n.Props == nil {
		return nil
	}
	return n.Props[key]
}

// PropString returns a String property, or "" if absent or of another type.
func (n *Node) PropString(key string) string {
	if s, ok := n.Prop(key).(ir.String); ok {
		return string(s)
	}
	return ""
}

// PropInt returns an Int property, or def if absent or of another type.
func (n *Node) PropInt(key string, def int64) int64 {
	if i, ok := n.Prop(key).(ir.Int); ok {
		return int64(i)
	}
	return def
}

// Clone returns a deep copy of the node's structure. Property values are
// shared since values are treated as immutable once stored.
func (n *Node) Clone() *Node {
	c := *n
	c.Inputs = clonePins(n.Inputs)
	c.Outputs = clonePins(n.Outputs)
	c.Props = maps.Clone(n.Props)
	return &c
}

func clonePins(pins []Pin) []Pin {
	out := slices.Clone(pins)
	for i := range out {
		out[i].links = slices.Clone(out[i].links)
	}
	return out
}
