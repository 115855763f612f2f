package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// NodeKind names a node behavior. The built-in kinds are listed below;
// RegisterKind adds more.
type NodeKind string

const (
	KindEvent              NodeKind = "event"
	KindBranch             NodeKind = "branch"
	KindSequence           NodeKind = "sequence"
	KindForLoop            NodeKind = "for_loop"
	KindForEach            NodeKind = "for_each"
	KindWhile              NodeKind = "while"
	KindCallBuiltin        NodeKind = "call_builtin"
	KindCallMethod         NodeKind = "call_method"
	KindCallScriptFunction NodeKind = "call_script_function"
	KindFunctionEntry      NodeKind = "function_entry"
	KindFunctionResult     NodeKind = "function_result"
	KindEmitSignal         NodeKind = "emit_signal"
	KindGetVariable        NodeKind = "get_variable"
	KindSetVariable        NodeKind = "set_variable"
	KindConstant           NodeKind = "constant"
	KindOperator           NodeKind = "operator"
	KindSelf               NodeKind = "self"
)

// Exit is the result of a step: the index of the control output to fire,
// counted over the node's control outputs only, or Stop.
type Exit int

// Stop ends the current control path.
const Stop Exit = -1

// StepFunc is the runtime behavior of a node kind. It reads inputs from and
// writes outputs to ctx, and returns the control exit to follow.
type StepFunc func(ctx *Context) (Exit, error)

// Layout carries what a kind needs to derive a new node's pins: the program
// (for signal and function signatures) and the builtin function table.
type Layout struct {
	Program   *program.Snapshot
	Functions *FunctionTable
}

// BuildEnv is passed to a kind's Validate hook.
type BuildEnv struct {
	Program   *program.Snapshot
	Graph     string
	Functions *FunctionTable
	ClassDB   ClassDB
}

// Pos returns the diagnostic position of node n.
func (e BuildEnv) Pos(n *program.Node, field string) diag.Position {
	return diag.At(e.Graph, n.ID, field)
}

// KindSpec is one entry of the behavior table.
type KindSpec struct {
	Kind NodeKind

	// Pins derives the pin layout of a new node from its properties.
	Pins func(l Layout, props map[string]ir.Value) (inputs, outputs []program.Pin, err error)

	// Step is the runtime behavior.
	Step StepFunc

	// Validate reports kind-specific semantic problems during a build.
	// Optional.
	Validate func(env BuildEnv, n *program.Node, log *diag.Log)

	// Override narrows resolved pin types for this kind. Optional.
	Override program.TypeOverride
}

var (
	registryMu sync.RWMutex
	registry   = map[NodeKind]*KindSpec{}
)

// RegisterKind adds or replaces a node kind in the behavior table.
func RegisterKind(spec KindSpec) {
	if spec.Step == nil {
		panic(fmt.Sprintf("engine: kind %q registered without a step function", spec.Kind))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	s := spec
	registry[spec.Kind] = &s
	if spec.Override != nil {
		program.RegisterTypeOverride(string(spec.Kind), spec.Override)
	}
}

// LookupKind returns the behavior registered for kind.
func LookupKind(kind NodeKind) (*KindSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[kind]
	return s, ok
}

// Kinds returns every registered kind name, sorted.
func Kinds() []NodeKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]NodeKind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// NewNode creates a node of the given kind with pins derived from props.
// The node is not yet part of any program.
func NewNode(l Layout, kind NodeKind, id int, props map[string]ir.Value) (*program.Node, error) {
	spec, ok := LookupKind(kind)
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
	if l.Functions == nil {
		l.Functions = DefaultFunctions()
	}
	var ins, outs []program.Pin
	if spec.Pins != nil {
		var err error
		ins, outs, err = spec.Pins(l, props)
		if err != nil {
			return nil, fmt.Errorf("%s node %d: %w", kind, id, err)
		}
	}
	if props == nil {
		props = map[string]ir.Value{}
	}
	return &program.Node{
		ID:            id,
		Kind:          string(kind),
		Inputs:        ins,
		Outputs:       outs,
		Flags:         program.FlagCatalogable,
		SchemaVersion: 1,
		Props:         props,
	}, nil
}

// AddNode creates a node of kind, derives its pins against the current
// snapshot, and inserts it into graph under the program's next free id.
func AddNode(p *program.Program, graph string, kind NodeKind, props map[string]ir.Value) (int, error) {
	n, err := NewNode(Layout{Program: p.Snapshot()}, kind, 0, props)
	if err != nil {
		return 0, err
	}
	return p.AddNodeAuto(graph, n)
}
