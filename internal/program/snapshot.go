package program

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/vscript/internal/ir"
)

// Snapshot is an immutable view of a program at one version. It is safe for
// concurrent readers. Pointers returned by its accessors must not be
// modified.
type Snapshot struct {
	version   uint64
	uid       string
	baseClass string
	nodes     map[int]*Node
	nodeGraph map[int]string
	conns     []Connection
	graphs    []*Graph
	functions []*Function
	variables []*Variable
	signals   []*Signal
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		nodes:     make(map[int]*Node),
		nodeGraph: make(map[int]string),
	}
}

func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		version:   s.version,
		uid:       s.uid,
		baseClass: s.baseClass,
		nodes:     make(map[int]*Node, len(s.nodes)),
		nodeGraph: maps.Clone(s.nodeGraph),
		conns:     slices.Clone(s.conns),
	}
	for id, n := range s.nodes {
		c.nodes[id] = n.Clone()
	}
	for _, g := range s.graphs {
		c.graphs = append(c.graphs, g.clone())
	}
	for _, f := range s.functions {
		c.functions = append(c.functions, f.clone())
	}
	for _, v := range s.variables {
		vc := *v
		c.variables = append(c.variables, &vc)
	}
	for _, sg := range s.signals {
		c.signals = append(c.signals, sg.clone())
	}
	return c
}

// Version increases with every committed edit.
func (s *Snapshot) Version() uint64 { return s.version }

// UID returns the program's persistent unique id.
func (s *Snapshot) UID() string { return s.uid }

// BaseClass returns the host class the program attaches to.
func (s *Snapshot) BaseClass() string { return s.baseClass }

// Node returns the node with the given id.
func (s *Snapshot) Node(id int) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// NodeIDs returns every node id in ascending order.
func (s *Snapshot) NodeIDs() []int {
	ids := make([]int, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// Pin returns the pin addressed by ref.
func (s *Snapshot) Pin(ref PinRef) (*Pin, bool) {
	n, ok := s.nodes[ref.Node]
	if !ok {
		return nil, false
	}
	return n.Pin(ref.Dir, ref.Port)
}

// Links returns the adjacency of the pin addressed by ref.
func (s *Snapshot) Links(ref PinRef) []PinRef {
	p, ok := s.Pin(ref)
	if !ok {
		return nil
	}
	return p.links
}

// Source returns the upstream output feeding the input addressed by ref.
func (s *Snapshot) Source(ref PinRef) (PinRef, bool) {
	links := s.Links(ref)
	if ref.Dir != Input || len(links) == 0 {
		return PinRef{}, false
	}
	return links[0], true
}

// Connections returns the flat connection list in insertion order.
func (s *Snapshot) Connections() []Connection { return s.conns }

// Graphs returns every graph in declaration order.
func (s *Snapshot) Graphs() []*Graph { return s.graphs }

// Graph returns the named graph.
func (s *Snapshot) Graph(name string) (*Graph, bool) {
	name = normalizeName(name)
	for _, g := range s.graphs {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// GraphOf returns the name of the graph owning node id.
func (s *Snapshot) GraphOf(id int) (string, bool) {
	g, ok := s.nodeGraph[id]
	return g, ok
}

// Functions returns every script function in declaration order.
func (s *Snapshot) Functions() []*Function { return s.functions }

// Function returns the named function.
func (s *Snapshot) Function(name string) (*Function, bool) {
	name = normalizeName(name)
	for _, f := range s.functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Variables returns every variable in declaration order.
func (s *Snapshot) Variables() []*Variable { return s.variables }

// Variable returns the named variable.
func (s *Snapshot) Variable(name string) (*Variable, bool) {
	name = normalizeName(name)
	for _, v := range s.variables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Signals returns every signal in declaration order.
func (s *Snapshot) Signals() []*Signal { return s.signals }

// Signal returns the named signal.
func (s *Snapshot) Signal(name string) (*Signal, bool) {
	name = normalizeName(name)
	for _, sg := range s.signals {
		if sg.Name == name {
			return sg, true
		}
	}
	return nil, false
}

// TypeOverride narrows the resolved type of a pin for a specific node kind.
// base is the resolution before the override ran.
type TypeOverride func(s *Snapshot, n *Node, ref PinRef, base ResolvedType) ResolvedType

var (
	overridesMu sync.RWMutex
	overrides   = map[string]TypeOverride{}
)

// RegisterTypeOverride installs fn as the type override for node kind. Later
// registrations replace earlier ones.
func RegisterTypeOverride(kind string, fn TypeOverride) {
	overridesMu.Lock()
	defer overridesMu.Unlock()
	overrides[kind] = fn
}

func typeOverride(kind string) TypeOverride {
	overridesMu.RLock()
	defer overridesMu.RUnlock()
	return overrides[kind]
}

// ResolveType returns the effective type of a pin. A Variant data input that
// is connected takes the resolved type of its source; every pin then passes
// through its node kind's override, if one is registered.
func (s *Snapshot) ResolveType(ref PinRef) (ResolvedType, error) {
	return s.resolveType(ref, 0)
}

// resolution follows sources through Variant inputs; the bound guards
// against pathological override chains
const maxResolveDepth = 64

func (s *Snapshot) resolveType(ref PinRef, depth int) (ResolvedType, error) {
	if depth > maxResolveDepth {
		return ResolvedType{}, fmt.Errorf("type of pin %s does not resolve", ref)
	}
	n, ok := s.nodes[ref.Node]
	if !ok {
		return ResolvedType{}, fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
	}
	p, ok := n.Pin(ref.Dir, ref.Port)
	if !ok {
		return ResolvedType{}, fmt.Errorf("%w: %s", ErrPinNotFound, ref)
	}
	rt := ResolvedType{Type: p.Type, ClassName: p.ClassName}
	if p.Kind == Data && p.Dir == Input && p.Type == ir.TypeVariant && len(p.links) > 0 {
		src, err := s.resolveType(p.links[0], depth+1)
		if err != nil {
			return ResolvedType{}, err
		}
		rt = src
	}
	if fn := typeOverride(n.Kind); fn != nil {
		rt = fn(s, n, ref, rt)
	}
	return rt, nil
}

// IsCoercionRequired reports whether a value flowing from the output from to
// the input to must pass through a coercion step: true whenever the resolved
// types differ.
func (s *Snapshot) IsCoercionRequired(from, to PinRef) (bool, error) {
	a, err := s.ResolveType(from)
	if err != nil {
		return false, err
	}
	b, err := s.ResolveType(to)
	if err != nil {
		return false, err
	}
	return ir.NeedsCoercion(a.Type, b.Type), nil
}

// CheckAdjacency verifies that every pin's adjacency cache agrees with the
// flat connection list.
func (s *Snapshot) CheckAdjacency() error {
	want := make(map[PinRef][]PinRef)
	for _, c := range s.conns {
		want[c.From()] = append(want[c.From()], c.To())
		want[c.To()] = append(want[c.To()], c.From())
	}
	for _, id := range s.NodeIDs() {
		n := s.nodes[id]
		for dir, pins := range [][]Pin{n.Inputs, n.Outputs} {
			for port := range pins {
				ref := PinRef{Node: id, Dir: Direction(dir), Port: port}
				got := pins[port].links
				exp := want[ref]
				if !sameRefs(got, exp) {
					return fmt.Errorf("pin %s adjacency %v disagrees with connection list %v", ref, got, exp)
				}
				delete(want, ref)
			}
		}
	}
	for ref := range want {
		return fmt.Errorf("connection references missing pin %s", ref)
	}
	return nil
}

func sameRefs(a, b []PinRef) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[PinRef]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		seen[r]--
		if seen[r] < 0 {
			return false
		}
	}
	return true
}
