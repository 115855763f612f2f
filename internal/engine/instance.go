package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// DefaultMaxDepth bounds nested chains on one instance (signals re-entering
// the same owner, script function recursion).
const DefaultMaxDepth = 64

// MaxSignalArgs is the largest number of positional arguments a signal
// dispatch supports.
const MaxSignalArgs = 10

// Option configures an Instance.
type Option func(*options)

type options struct {
	maxSteps  int
	maxDepth  int
	debugger  Debugger
	classDB   ClassDB
	functions *FunctionTable
	ids       ChainIDGenerator
	clock     *Clock
	observer  Observer
	printer   func(string)
}

// WithMaxSteps bounds the number of steps a single chain may take.
// Default: 0 (unlimited).
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithMaxDepth bounds nested chains on one instance.
// Default: DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithDebugger attaches a breakpoint collaborator.
func WithDebugger(d Debugger) Option {
	return func(o *options) { o.debugger = d }
}

// WithClassDB sets the host class database.
func WithClassDB(db ClassDB) Option {
	return func(o *options) { o.classDB = db }
}

// WithFunctions replaces the builtin function table.
func WithFunctions(t *FunctionTable) Option {
	return func(o *options) { o.functions = t }
}

// WithChainIDs sets the chain id generator. Default: UUIDv7Generator.
func WithChainIDs(g ChainIDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the logical clock used to sequence chains.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithObserver receives step and chain events.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithPrinter receives the output of the print builtin. Default: slog at
// info level.
func WithPrinter(fn func(string)) Option {
	return func(o *options) { o.printer = fn }
}

// Instance is a program attached to one owner. Node instances are created on
// demand per program version and never persisted.
//
// Thread-safety: chains on one instance run on the caller's goroutine. The
// host must not run chains for the same owner on two goroutines at once;
// distinct instances of the same program may run concurrently.
type Instance struct {
	prog  *program.Program
	owner Owner
	opts  options

	mu   sync.Mutex
	vars map[string]ir.Value
	view *view

	depth atomic.Int32
}

// Instantiate attaches prog to owner. Variables start at their declared
// defaults.
func Instantiate(prog *program.Program, owner Owner, opts ...Option) *Instance {
	o := options{
		maxDepth: DefaultMaxDepth,
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.functions == nil {
		o.functions = DefaultFunctions()
	}
	if o.printer == nil {
		o.printer = func(s string) { slog.Info("print", "owner", owner.Path(), "text", s) }
	}
	inst := &Instance{
		prog:  prog,
		owner: owner,
		opts:  o,
		vars:  make(map[string]ir.Value),
	}
	for _, v := range prog.Snapshot().Variables() {
		inst.vars[v.Name] = v.Default
	}
	return inst
}

// Owner returns the instance's owner.
func (inst *Instance) Owner() Owner {
	return inst.owner
}

// Program returns the instantiated program.
func (inst *Instance) Program() *program.Program {
	return inst.prog
}

// Variable returns the current value of a declared variable.
func (inst *Instance) Variable(name string) (ir.Value, error) {
	return inst.variable(inst.prog.Snapshot(), name)
}

// SetVariable assigns a declared variable, converting to its declared type.
func (inst *Instance) SetVariable(name string, v ir.Value) error {
	return inst.setVariable(inst.prog.Snapshot(), name, v)
}

func (inst *Instance) variable(snap *program.Snapshot, name string) (ir.Value, error) {
	decl, ok := snap.Variable(name)
	if !ok {
		return nil, newError(ErrCodeVariableUndefined, "variable %q is not declared", name)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if v, ok := inst.vars[name]; ok {
		return v, nil
	}
	return decl.Default, nil
}

func (inst *Instance) setVariable(snap *program.Snapshot, name string, v ir.Value) error {
	decl, ok := snap.Variable(name)
	if !ok {
		return newError(ErrCodeVariableUndefined, "variable %q is not declared", name)
	}
	cv, err := ir.Convert(v, decl.Type)
	if err != nil {
		return &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("variable %q", name), NodeID: -1, Err: err}
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.vars[name] = cv
	return nil
}

// Trigger starts one chain for every event node handling event, in graph
// order. Each chain is independent: a failure in one does not prevent the
// others from running. Returns a NO_ENTRY error if nothing handles event.
func (inst *Instance) Trigger(ctx context.Context, event string, args ...ir.Value) error {
	v := inst.currentView()
	entries := v.eventEntries(event)
	if len(entries) == 0 {
		return &RuntimeError{
			Code:    ErrCodeNoEntry,
			Message: fmt.Sprintf("no event node handles %q", event),
			Owner:   inst.owner.Path(),
			NodeID:  -1,
		}
	}
	var errs []error
	for _, id := range entries {
		if _, err := inst.runChain(ctx, v, id, "event:"+event, args); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Call runs a script function as a chain and returns its result, or Nil if
// the function finished without reaching a result node.
func (inst *Instance) Call(ctx context.Context, name string, args ...ir.Value) (ir.Value, error) {
	return inst.callFunction(ctx, inst.currentView(), name, args)
}

func (inst *Instance) callFunction(ctx context.Context, v *view, name string, args []ir.Value) (ir.Value, error) {
	fn, ok := v.snap.Function(name)
	if !ok {
		return nil, newError(ErrCodeFunctionNotFound, "script function %q is not declared", name)
	}
	entry, ok := v.functionEntry(fn)
	if !ok {
		return nil, newError(ErrCodeFunctionNotFound, "script function %q has no entry node", name)
	}
	if len(args) != len(fn.Params) {
		return nil, newError(ErrCodeTypeMismatch, "function %q expects %d arguments, got %d", name, len(fn.Params), len(args))
	}
	converted := make([]ir.Value, len(args))
	for i, a := range args {
		cv, err := ir.Convert(a, fn.Params[i].Type)
		if err != nil {
			return nil, &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("argument %q of %q", fn.Params[i].Name, name), NodeID: -1, Err: err}
		}
		converted[i] = cv
	}
	result, err := inst.runChain(ctx, v, entry, "function:"+name, converted)
	if err != nil {
		return nil, err
	}
	if result == nil || fn.Return == ir.TypeNil {
		return ir.Zero(fn.Return), nil
	}
	out, err := ir.Convert(result, fn.Return)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("result of %q", name), NodeID: -1, Err: err}
	}
	return out, nil
}

// currentView returns the node-instance view for the program's current
// version, creating it when the program changed since the last chain.
func (inst *Instance) currentView() *view {
	snap := inst.prog.Snapshot()
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.view == nil || inst.view.snap != snap {
		inst.view = &view{snap: snap, nodes: make(map[int]*nodeInstance)}
	}
	return inst.view
}

// view pairs a snapshot with the node instances created for it. Chains keep
// the view they started with, so edits never disturb a running chain.
type view struct {
	snap  *program.Snapshot
	mu    sync.Mutex
	nodes map[int]*nodeInstance
}

// nodeInstance is the runtime counterpart of a node: its behavior plus the
// port bookkeeping the chain loop needs.
type nodeInstance struct {
	node           *program.Node
	spec           *KindSpec
	pure           bool
	dataIn         []int
	dataOutOrdinal []int
	controlOut     []int
	controlInOrd   []int
}

func (v *view) instance(id int) (*nodeInstance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ni, ok := v.nodes[id]; ok {
		return ni, nil
	}
	n, ok := v.snap.Node(id)
	if !ok {
		return nil, newError(ErrCodeStepFailed, "node %d does not exist", id)
	}
	spec, ok := LookupKind(NodeKind(n.Kind))
	if !ok {
		e := newError(ErrCodeUnknownKind, "no behavior registered for kind %q", n.Kind)
		e.NodeID = id
		return nil, e
	}
	ni := &nodeInstance{
		node:       n,
		spec:       spec,
		pure:       n.Pure(),
		dataIn:     n.DataInputs(),
		controlOut: n.ControlOutputs(),
	}
	ni.dataOutOrdinal = make([]int, len(n.Outputs))
	ord := 0
	for i := range n.Outputs {
		ni.dataOutOrdinal[i] = -1
		if n.Outputs[i].Kind == program.Data {
			ni.dataOutOrdinal[i] = ord
			ord++
		}
	}
	ni.controlInOrd = make([]int, len(n.Inputs))
	ord = 0
	for i := range n.Inputs {
		ni.controlInOrd[i] = -1
		if n.Inputs[i].Kind == program.Control {
			ni.controlInOrd[i] = ord
			ord++
		}
	}
	v.nodes[id] = ni
	return ni, nil
}

func (ni *nodeInstance) numDataOut() int {
	n := 0
	for _, o := range ni.dataOutOrdinal {
		if o >= 0 {
			n++
		}
	}
	return n
}

func (v *view) eventEntries(event string) []int {
	var out []int
	for _, g := range v.snap.Graphs() {
		if g.Flags&program.GraphEvent == 0 {
			continue
		}
		for _, id := range g.Nodes {
			n, ok := v.snap.Node(id)
			if ok && n.Kind == string(KindEvent) && n.PropString("event") == event {
				out = append(out, id)
			}
		}
	}
	return out
}

func (v *view) functionEntry(fn *program.Function) (int, bool) {
	g, ok := v.snap.Graph(fn.Graph)
	if !ok {
		return 0, false
	}
	fallback := -1
	for _, id := range g.Nodes {
		n, ok := v.snap.Node(id)
		if !ok || n.Kind != string(KindFunctionEntry) {
			continue
		}
		if n.PropString("function") == fn.Name {
			return id, true
		}
		if fallback < 0 {
			fallback = id
		}
	}
	return fallback, fallback >= 0
}
