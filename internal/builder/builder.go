// Package builder validates a program before it may run.
//
// A build walks every node of every graph and appends findings to a
// diag.Log. Structural checks run first (connections, fan-in, type
// resolution, data cycles), then each node kind's own Validate hook. The
// build never stops at the first problem.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// Structural diagnostic codes (E201-E219, W201-W219). Kind-specific codes
// live with the kinds in the engine package.
const (
	// Node errors (E201-E205)
	ErrUnknownKind      = "E201" // node kind is not registered
	ErrRequiredInput    = "E202" // required data input neither connected nor defaulted
	ErrFanIn            = "E203" // data input has more than one source
	ErrUnresolvedType   = "E204" // pin type does not resolve
	ErrIncompatibleLink = "E205" // source type cannot flow into target pin

	// Program errors (E206-E210)
	ErrAdjacency         = "E206" // pin adjacency disagrees with connection list
	ErrDanglingNode      = "E207" // graph lists a node the program does not hold
	ErrMissingEventGraph = "E208" // event graph is missing
	ErrMissingFuncGraph  = "E209" // function graph is missing
	ErrDataCycle         = "E210" // pure nodes feed each other
	ErrBadDefault        = "E211" // unconnected input default cannot convert to the pin type

	// Warnings (W201-W219)
	WarnNotNormalized = "W201" // name is not in Unicode NFC
	WarnUnreachable   = "W202" // stepped node has no connected control input
	WarnStaleLayout   = "W204" // pins differ from what the kind derives today
	WarnNoEntry       = "W206" // function graph has no function_entry node
)

// options holds build configuration.
type options struct {
	classDB   engine.ClassDB
	functions *engine.FunctionTable
}

// Option configures a build.
type Option func(*options)

// WithClassDB enables call-target checks against host classes.
func WithClassDB(db engine.ClassDB) Option {
	return func(o *options) { o.classDB = db }
}

// WithFunctions sets the builtin function table call_builtin nodes are
// checked against. Defaults to engine.DefaultFunctions().
func WithFunctions(ft *engine.FunctionTable) Option {
	return func(o *options) { o.functions = ft }
}

// BuildError is returned by Build when the log holds errors.
type BuildError struct {
	Log *diag.Log
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	errs := e.Log.Errors()
	if len(errs) == 1 {
		return fmt.Sprintf("build failed: %s", errs[0])
	}
	return fmt.Sprintf("build failed with %d errors; first: %s", len(errs), errs[0])
}

// IsBuildError reports whether err is a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// Build validates snap into a fresh log. The error is a *BuildError when the
// log holds at least one error entry.
func Build(snap *program.Snapshot, opts ...Option) (*diag.Log, error) {
	log := &diag.Log{}
	if errs, _ := ValidateAndBuild(snap, log, opts...); errs > 0 {
		return log, &BuildError{Log: log}
	}
	return log, nil
}

// ValidateAndBuild appends every finding for snap to log and returns the
// number of errors and warnings appended by this call.
func ValidateAndBuild(snap *program.Snapshot, log *diag.Log, opts ...Option) (errs, warnings int) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.functions == nil {
		o.functions = engine.DefaultFunctions()
	}

	start := log.Len()
	b := &build{snap: snap, log: log, opts: o}
	b.checkProgram()
	for _, g := range snap.Graphs() {
		for _, id := range g.Nodes {
			n, ok := snap.Node(id)
			if !ok {
				log.Errorf(diag.At(g.Name, id, ""), ErrDanglingNode, "graph lists node %d which does not exist", id)
				continue
			}
			b.checkNode(g.Name, n)
		}
	}
	b.checkDataCycles()

	for _, e := range log.Entries()[start:] {
		switch e.Severity {
		case diag.SeverityError:
			errs++
		case diag.SeverityWarning:
			warnings++
		}
	}
	slog.Debug("build finished",
		"version", snap.Version(),
		"nodes", snap.NodeCount(),
		"errors", errs,
		"warnings", warnings,
	)
	return errs, warnings
}

type build struct {
	snap *program.Snapshot
	log  *diag.Log
	opts options
}

func (b *build) checkProgram() {
	if err := b.snap.CheckAdjacency(); err != nil {
		b.log.Errorf(diag.Global("connections"), ErrAdjacency, "%v", err)
	}
	if _, ok := b.snap.Graph(program.EventGraphName); !ok {
		b.log.Errorf(diag.Global("graphs"), ErrMissingEventGraph, "program has no %s", program.EventGraphName)
	}

	for _, g := range b.snap.Graphs() {
		b.checkName(diag.Global("graphs."+g.Name), g.Name)
	}
	for _, sig := range b.snap.Signals() {
		b.checkName(diag.Global("signals."+sig.Name), sig.Name)
	}
	for _, v := range b.snap.Variables() {
		b.checkName(diag.Global("variables."+v.Name), v.Name)
	}
	for _, fn := range b.snap.Functions() {
		field := "functions." + fn.Name
		b.checkName(diag.Global(field), fn.Name)
		g, ok := b.snap.Graph(fn.Graph)
		if !ok {
			b.log.Errorf(diag.Global(field), ErrMissingFuncGraph, "function %q has no graph %q", fn.Name, fn.Graph)
			continue
		}
		if !slices.ContainsFunc(g.Nodes, func(id int) bool {
			n, ok := b.snap.Node(id)
			return ok && n.Kind == string(engine.KindFunctionEntry)
		}) {
			b.log.Warnf(diag.At(g.Name, diag.NoNode, ""), WarnNoEntry, "function %q has no entry node", fn.Name)
		}
	}
}

// nameProps are the node properties that refer to declarations by name.
var nameProps = []string{"event", "signal", "function", "variable", "method", "class"}

func (b *build) checkName(pos diag.Position, name string) {
	if !norm.NFC.IsNormalString(name) {
		b.log.Warnf(pos, WarnNotNormalized, "name %q is not NFC-normalized", name)
	}
}

func (b *build) checkNode(graph string, n *program.Node) {
	spec, ok := engine.LookupKind(engine.NodeKind(n.Kind))
	if !ok {
		b.log.Errorf(diag.At(graph, n.ID, "kind"), ErrUnknownKind, "unknown node kind %q", n.Kind)
		return
	}

	for _, key := range nameProps {
		if name := n.PropString(key); name != "" {
			b.checkName(diag.At(graph, n.ID, key), name)
		}
	}
	b.checkLayout(graph, n)
	for port := range n.Inputs {
		b.checkInput(graph, n, port)
	}
	if !n.Pure() && !hasConnectedControlInput(n) &&
		n.Kind != string(engine.KindEvent) && n.Kind != string(engine.KindFunctionEntry) {
		b.log.Warnf(diag.At(graph, n.ID, ""), WarnUnreachable, "%s node is never reached by control flow", n.Kind)
	}

	if spec.Validate != nil {
		env := engine.BuildEnv{
			Program:   b.snap,
			Graph:     graph,
			Functions: b.opts.functions,
			ClassDB:   b.opts.classDB,
		}
		spec.Validate(env, n, b.log)
	}
}

// checkLayout compares the stored pins with the layout the kind derives from
// the node's properties against the current program. Signatures edited after
// the node was placed show up here.
func (b *build) checkLayout(graph string, n *program.Node) {
	l := engine.Layout{Program: b.snap, Functions: b.opts.functions}
	fresh, err := engine.NewNode(l, engine.NodeKind(n.Kind), n.ID, n.Props)
	if err != nil {
		// the kind's Validate hook reports the cause
		return
	}
	if !samePins(n.Inputs, fresh.Inputs) || !samePins(n.Outputs, fresh.Outputs) {
		b.log.Warnf(diag.At(graph, n.ID, "pins"), WarnStaleLayout, "%s node pins are out of date", n.Kind)
	}
}

func samePins(a, b []program.Pin) bool {
	return slices.EqualFunc(a, b, func(x, y program.Pin) bool {
		return x.Name == y.Name && x.Kind == y.Kind && x.Type == y.Type
	})
}

func hasConnectedControlInput(n *program.Node) bool {
	for i := range n.Inputs {
		if n.Inputs[i].Kind == program.Control && n.Inputs[i].Connected() {
			return true
		}
	}
	return false
}

func (b *build) checkInput(graph string, n *program.Node, port int) {
	pin := &n.Inputs[port]
	if pin.Kind != program.Data {
		return
	}
	pos := diag.At(graph, n.ID, fmt.Sprintf("inputs[%d]", port))
	links := pin.Links()

	if len(links) > 1 {
		b.log.Errorf(pos, ErrFanIn, "input %q has %d sources", pin.Name, len(links))
	}
	if len(links) == 0 {
		// a nil default means the type's zero value
		def := ir.TypeOf(pin.Default)
		switch {
		case pin.Required && def == ir.TypeNil:
			b.log.Errorf(pos, ErrRequiredInput, "required input %q is not connected", pin.Name)
		case pin.Default != nil && !ir.CanConvert(def, pin.Type):
			b.log.Errorf(pos, ErrBadDefault, "input %q defaults to %s, want %s", pin.Name, def, pin.Type)
		}
	}

	if _, err := b.snap.ResolveType(program.In(n.ID, port)); err != nil {
		b.log.Errorf(pos, ErrUnresolvedType, "%v", err)
		return
	}
	if len(links) == 0 {
		return
	}
	src, err := b.snap.ResolveType(links[0])
	if err != nil {
		b.log.Errorf(pos, ErrUnresolvedType, "source %s: %v", links[0], err)
		return
	}
	// resolution narrows inputs to their source, so compare against what the
	// pin declares
	if !ir.CanConvert(src.Type, pin.Type) {
		b.log.Errorf(pos, ErrIncompatibleLink, "%s cannot flow into %q (%s)", src, pin.Name, pin.Type)
		return
	}
	if b.opts.classDB != nil && src.Type == ir.TypeObject && pin.ClassName != "" && src.ClassName != "" &&
		!b.opts.classDB.IsParentClass(src.ClassName, pin.ClassName) {
		b.log.Errorf(pos, ErrIncompatibleLink, "%s is not a %s", src.ClassName, pin.ClassName)
	}
}
