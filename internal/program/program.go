package program

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/vscript/internal/ir"
)

// Program is the top-level container of graphs, nodes, connections,
// functions, variables and signals. It is safe for concurrent use: edits are
// serialized, reads go through immutable snapshots.
type Program struct {
	mu        sync.Mutex
	cur       *Snapshot
	published atomic.Pointer[Snapshot]

	subMu  sync.RWMutex
	subs   []subscriber
	nextSu int
}

// New creates an empty program for the given host base class. The program
// starts with the event graph.
func New(baseClass string) *Program {
	p := &Program{cur: newSnapshot()}
	p.cur.baseClass = baseClass
	p.cur.graphs = []*Graph{{Name: EventGraphName, Flags: GraphEvent}}
	return p
}

// NewEmpty creates a program with no graphs at all. Loaders use it to rebuild
// persisted structure verbatim before repairing it.
func NewEmpty(baseClass string) *Program {
	p := &Program{cur: newSnapshot()}
	p.cur.baseClass = baseClass
	return p
}

// Snapshot returns an immutable view of the current version. Consecutive
// calls without an intervening edit return the same snapshot.
func (p *Program) Snapshot() *Snapshot {
	if s := p.published.Load(); s != nil {
		return s
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.published.Load(); s != nil {
		return s
	}
	s := p.cur.clone()
	p.published.Store(s)
	return s
}

// Subscribe registers fn to be called after every committed edit. The
// returned function unsubscribes.
func (p *Program) Subscribe(fn func(Change)) (unsubscribe func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.nextSu++
	id := p.nextSu
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		p.subs = slices.DeleteFunc(p.subs, func(s subscriber) bool { return s.id == id })
	}
}

// edit runs fn under the write lock and, if it succeeds, bumps the version,
// invalidates the published snapshot and notifies subscribers.
func (p *Program) edit(fn func(s *Snapshot) ([]Change, error)) error {
	p.mu.Lock()
	changes, err := fn(p.cur)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if len(changes) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.cur.version++
	version := p.cur.version
	p.published.Store(nil)
	p.mu.Unlock()

	p.subMu.RLock()
	subs := slices.Clone(p.subs)
	p.subMu.RUnlock()
	for _, c := range changes {
		c.Version = version
		for _, s := range subs {
			s.fn(c)
		}
	}
	return nil
}

// normalizeName puts declaration names in Unicode NFC. Every entry point that
// takes a name normalizes it, so composed and decomposed spellings address
// the same declaration.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// SetUID sets the program's persistent unique id.
func (p *Program) SetUID(uid string) {
	_ = p.edit(func(s *Snapshot) ([]Change, error) {
		s.uid = uid
		return []Change{{Kind: ChangeProgramUpdated, NodeID: -1, Name: "uid"}}, nil
	})
}

// SetBaseClass sets the host class the program attaches to.
func (p *Program) SetBaseClass(class string) {
	_ = p.edit(func(s *Snapshot) ([]Change, error) {
		s.baseClass = class
		return []Change{{Kind: ChangeProgramUpdated, NodeID: -1, Name: "base_class"}}, nil
	})
}

// AddGraph adds an empty graph.
func (p *Program) AddGraph(name string, flags GraphFlags) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.Graph(name); ok {
			return nil, fmt.Errorf("%w: graph %q", ErrDuplicateName, name)
		}
		s.graphs = append(s.graphs, &Graph{Name: name, Flags: flags})
		return []Change{{Kind: ChangeGraphAdded, Name: name}}, nil
	})
}

// RemoveGraph removes a graph and every node in it.
func (p *Program) RemoveGraph(name string) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		i := slices.IndexFunc(s.graphs, func(g *Graph) bool { return g.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, name)
		}
		var changes []Change
		for _, id := range slices.Clone(s.graphs[i].Nodes) {
			changes = append(changes, removeNode(s, id)...)
		}
		s.graphs = slices.Delete(s.graphs, i, i+1)
		return append(changes, Change{Kind: ChangeGraphRemoved, Name: name}), nil
	})
}

// NextNodeID returns an id one greater than the largest id in use.
func (p *Program) NextNodeID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return nextNodeID(p.cur)
}

func nextNodeID(s *Snapshot) int {
	next := 1
	for id := range s.nodes {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// AddNode inserts n into the named graph. The node's id must be unique. The
// program keeps its own copy; later changes to n have no effect.
func (p *Program) AddNode(graph string, n *Node) error {
	graph = normalizeName(graph)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		return insertNode(s, graph, n)
	})
}

// AddNodeAuto inserts n under the next free id, ignoring n.ID, and returns
// the id it was given. The id is chosen under the same lock as the insert,
// so concurrent editors never collide.
func (p *Program) AddNodeAuto(graph string, n *Node) (int, error) {
	graph = normalizeName(graph)
	var id int
	err := p.edit(func(s *Snapshot) ([]Change, error) {
		c := *n
		c.ID = nextNodeID(s)
		id = c.ID
		return insertNode(s, graph, &c)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertNode(s *Snapshot, graph string, n *Node) ([]Change, error) {
	if _, ok := s.nodes[n.ID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
	}
	g, ok := s.Graph(graph)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, graph)
	}
	c := n.Clone()
	for i := range c.Inputs {
		c.Inputs[i].Dir, c.Inputs[i].links = Input, nil
	}
	for i := range c.Outputs {
		c.Outputs[i].Dir, c.Outputs[i].links = Output, nil
	}
	s.nodes[c.ID] = c
	s.nodeGraph[c.ID] = g.Name
	g.Nodes = append(g.Nodes, c.ID)
	return []Change{{Kind: ChangeNodeAdded, NodeID: c.ID, Name: g.Name}}, nil
}

// RemoveNode removes a node and every connection touching it.
func (p *Program) RemoveNode(id int) error {
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
		}
		return removeNode(s, id), nil
	})
}

func removeNode(s *Snapshot, id int) []Change {
	var changes []Change
	n := s.nodes[id]
	for dir, pins := range [][]Pin{n.Inputs, n.Outputs} {
		for port := range pins {
			changes = append(changes, unlinkAll(s, PinRef{Node: id, Dir: Direction(dir), Port: port})...)
		}
	}
	if g, ok := s.Graph(s.nodeGraph[id]); ok {
		g.Nodes = slices.DeleteFunc(g.Nodes, func(x int) bool { return x == id })
	}
	delete(s.nodes, id)
	delete(s.nodeGraph, id)
	return append(changes, Change{Kind: ChangeNodeRemoved, NodeID: id})
}

// MoveNode reassigns a node to another graph.
func (p *Program) MoveNode(id int, graph string) error {
	graph = normalizeName(graph)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
		}
		dst, ok := s.Graph(graph)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, graph)
		}
		if src, ok := s.Graph(s.nodeGraph[id]); ok {
			src.Nodes = slices.DeleteFunc(src.Nodes, func(x int) bool { return x == id })
		}
		dst.Nodes = append(dst.Nodes, id)
		s.nodeGraph[id] = dst.Name
		return []Change{{Kind: ChangeNodeUpdated, NodeID: id, Name: dst.Name}}, nil
	})
}

// SetNodeFlags replaces a node's flags.
func (p *Program) SetNodeFlags(id int, flags NodeFlags) error {
	return p.updateNode(id, func(n *Node) error {
		n.Flags = flags
		return nil
	})
}

// SetNodeProp sets one kind-specific property on a node.
func (p *Program) SetNodeProp(id int, key string, v ir.Value) error {
	return p.updateNode(id, func(n *Node) error {
		if n.Props == nil {
			n.Props = make(map[string]ir.Value)
		}
		n.Props[key] = v
		return nil
	})
}

// SetPinDefault sets the default value of a data input.
func (p *Program) SetPinDefault(ref PinRef, v ir.Value) error {
	return p.updateNode(ref.Node, func(n *Node) error {
		pin, ok := n.Pin(ref.Dir, ref.Port)
		if !ok || pin.Dir != Input || pin.Kind != Data {
			return fmt.Errorf("%w: %s", ErrPinNotFound, ref)
		}
		if !ir.CanConvert(ir.TypeOf(v), pin.Type) {
			return fmt.Errorf("%w: default %s for %s pin", ErrTypeMismatch, ir.TypeOf(v), pin.Type)
		}
		pin.Default = v
		return nil
	})
}

func (p *Program) updateNode(id int, fn func(n *Node) error) error {
	return p.edit(func(s *Snapshot) ([]Change, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
		}
		if err := fn(n); err != nil {
			return nil, err
		}
		return []Change{{Kind: ChangeNodeUpdated, NodeID: id}}, nil
	})
}

// AddFunction declares a script function and creates its graph if it does
// not exist yet.
func (p *Program) AddFunction(fn Function) error {
	fn.Name = normalizeName(fn.Name)
	fn.Graph = normalizeName(fn.Graph)
	if fn.Graph == "" {
		fn.Graph = fn.Name
	}
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.Function(fn.Name); ok {
			return nil, fmt.Errorf("%w: function %q", ErrDuplicateName, fn.Name)
		}
		changes := []Change{}
		if _, ok := s.Graph(fn.Graph); !ok {
			s.graphs = append(s.graphs, &Graph{Name: fn.Graph, Flags: GraphFunction})
			changes = append(changes, Change{Kind: ChangeGraphAdded, Name: fn.Graph})
		}
		s.functions = append(s.functions, fn.clone())
		return append(changes, Change{Kind: ChangeFunctionAdded, Name: fn.Name}), nil
	})
}

// RemoveFunction deletes a function declaration. Its graph and nodes stay so
// that callers referencing it surface as build errors instead of vanishing.
func (p *Program) RemoveFunction(name string) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		i := slices.IndexFunc(s.functions, func(f *Function) bool { return f.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: function %q", ErrNotFound, name)
		}
		s.functions = slices.Delete(s.functions, i, i+1)
		return []Change{{Kind: ChangeFunctionRemoved, Name: name}}, nil
	})
}

// AddVariable declares a variable. A nil default becomes the type's zero.
func (p *Program) AddVariable(v Variable) error {
	v.Name = normalizeName(v.Name)
	if v.Default == nil {
		v.Default = ir.Zero(v.Type)
	}
	if !ir.CanConvert(ir.TypeOf(v.Default), v.Type) {
		return fmt.Errorf("%w: default %s for %s variable %q", ErrTypeMismatch, ir.TypeOf(v.Default), v.Type, v.Name)
	}
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.Variable(v.Name); ok {
			return nil, fmt.Errorf("%w: variable %q", ErrDuplicateName, v.Name)
		}
		vc := v
		s.variables = append(s.variables, &vc)
		return []Change{{Kind: ChangeVariableAdded, Name: v.Name}}, nil
	})
}

// SetVariableDefault changes a variable's default value.
func (p *Program) SetVariableDefault(name string, def ir.Value) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		v, ok := s.Variable(name)
		if !ok {
			return nil, fmt.Errorf("%w: variable %q", ErrNotFound, name)
		}
		if !ir.CanConvert(ir.TypeOf(def), v.Type) {
			return nil, fmt.Errorf("%w: default %s for %s variable", ErrTypeMismatch, ir.TypeOf(def), v.Type)
		}
		v.Default = def
		return []Change{{Kind: ChangeVariableUpdated, Name: name}}, nil
	})
}

// RemoveVariable deletes a variable declaration.
func (p *Program) RemoveVariable(name string) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		i := slices.IndexFunc(s.variables, func(v *Variable) bool { return v.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: variable %q", ErrNotFound, name)
		}
		s.variables = slices.Delete(s.variables, i, i+1)
		return []Change{{Kind: ChangeVariableRemoved, Name: name}}, nil
	})
}

// AddSignal declares a signal.
func (p *Program) AddSignal(sig Signal) error {
	sig.Name = normalizeName(sig.Name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.Signal(sig.Name); ok {
			return nil, fmt.Errorf("%w: signal %q", ErrDuplicateName, sig.Name)
		}
		s.signals = append(s.signals, sig.clone())
		return []Change{{Kind: ChangeSignalAdded, Name: sig.Name}}, nil
	})
}

// SetSignalArgs replaces a signal's argument list.
func (p *Program) SetSignalArgs(name string, args []Param) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		sg, ok := s.Signal(name)
		if !ok {
			return nil, fmt.Errorf("%w: signal %q", ErrNotFound, name)
		}
		sg.Args = slices.Clone(args)
		return []Change{{Kind: ChangeSignalUpdated, Name: name}}, nil
	})
}

// RemoveSignal deletes a signal declaration.
func (p *Program) RemoveSignal(name string) error {
	name = normalizeName(name)
	return p.edit(func(s *Snapshot) ([]Change, error) {
		i := slices.IndexFunc(s.signals, func(sg *Signal) bool { return sg.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: signal %q", ErrNotFound, name)
		}
		s.signals = slices.Delete(s.signals, i, i+1)
		return []Change{{Kind: ChangeSignalRemoved, Name: name}}, nil
	})
}
