package program

import (
	"slices"

	"github.com/roach88/vscript/internal/ir"
)

// EventGraphName is the graph every program carries for event entry points.
const EventGraphName = "EventGraph"

// GraphFlags is a bit set describing a graph's role.
type GraphFlags uint32

const (
	GraphEvent GraphFlags = 1 << iota
	GraphFunction
)

// Graph is a named, ordered subset of the program's nodes. Every node belongs
// to exactly one graph.
type Graph struct {
	Name  string
	Flags GraphFlags
	Nodes []int
}

func (g *Graph) clone() *Graph {
	c := *g
	c.Nodes = slices.Clone(g.Nodes)
	return &c
}

// Param is a named, typed argument of a function or signal.
type Param struct {
	Name string
	Type ir.Type
}

// Function is a script function: a dedicated graph plus a signature.
type Function struct {
	Name   string
	Graph  string
	Params []Param
	Return ir.Type
}

func (f *Function) clone() *Function {
	c := *f
	c.Params = slices.Clone(f.Params)
	return &c
}

// Variable is a per-instance typed slot with a default value.
type Variable struct {
	Name     string
	Type     ir.Type
	Default  ir.Value
	Exported bool
	Hint     string
}

// Signal is a named event the owner can emit.
type Signal struct {
	Name string
	Args []Param
}

func (s *Signal) clone() *Signal {
	c := *s
	c.Args = slices.Clone(s.Args)
	return &c
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	FromNode int `json:"from_node"`
	FromPort int `json:"from_port"`
	ToNode   int `json:"to_node"`
	ToPort   int `json:"to_port"`
}

// From returns the output end.
func (c Connection) From() PinRef { return Out(c.FromNode, c.FromPort) }

// To returns the input end.
func (c Connection) To() PinRef { return In(c.ToNode, c.ToPort) }

func connectionOf(from, to PinRef) Connection {
	return Connection{FromNode: from.Node, FromPort: from.Port, ToNode: to.Node, ToPort: to.Port}
}
