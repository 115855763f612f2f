package builder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

func addNode(t *testing.T, p *program.Program, graph string, kind engine.NodeKind, kv ...any) int {
	t.Helper()
	props := make(map[string]ir.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		if s, ok := v.(string); ok {
			v = ir.String(s)
		}
		props[kv[i].(string)] = v.(ir.Value)
	}
	id, err := engine.AddNode(p, graph, kind, props)
	require.NoError(t, err)
	return id
}

func link(t *testing.T, p *program.Program, a, b program.PinRef) {
	t.Helper()
	require.NoError(t, p.Link(a, b))
}

func codes(entries []diag.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

// emitProgram builds "ready -> emit hit(int)" fed by a constant.
func emitProgram(t *testing.T) (*program.Program, int) {
	t.Helper()
	p := program.New("Node2D")
	require.NoError(t, p.AddSignal(program.Signal{Name: "hit", Args: []program.Param{{Name: "damage", Type: ir.TypeInt}}}))
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	emit := addNode(t, p, program.EventGraphName, engine.KindEmitSignal, "signal", "hit")
	c := addNode(t, p, program.EventGraphName, engine.KindConstant, "value", ir.Int(3))
	link(t, p, program.Out(ev, 0), program.In(emit, 0))
	link(t, p, program.Out(c, 0), program.In(emit, 1))
	return p, emit
}

func TestBuildCleanProgram(t *testing.T) {
	p, _ := emitProgram(t)

	log := &diag.Log{}
	errs, warnings := ValidateAndBuild(p.Snapshot(), log)
	assert.Zero(t, errs)
	assert.Zero(t, warnings)
	assert.False(t, log.HasErrors())

	_, err := Build(p.Snapshot())
	assert.NoError(t, err)
}

func TestValidateAndBuildCountsOnlyItsOwnEntries(t *testing.T) {
	p, _ := emitProgram(t)
	log := &diag.Log{}
	log.Errorf(diag.Global("earlier"), "E999", "from a previous pass")

	errs, _ := ValidateAndBuild(p.Snapshot(), log)
	assert.Zero(t, errs)
	assert.Equal(t, 1, log.Len())
}

func TestSignalWithElevenArgumentsFailsBuild(t *testing.T) {
	p := program.New("Node2D")
	args := make([]program.Param, 11)
	for i := range args {
		args[i] = program.Param{Name: fmt.Sprintf("a%d", i), Type: ir.TypeInt}
	}
	require.NoError(t, p.AddSignal(program.Signal{Name: "wide", Args: args}))
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	emit := addNode(t, p, program.EventGraphName, engine.KindEmitSignal, "signal", "wide")
	link(t, p, program.Out(ev, 0), program.In(emit, 0))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	assert.True(t, log.HasErrors())
	assert.Contains(t, codes(log.Errors()), engine.CodeTooManySignalArgs)
}

func TestRemovedScriptFunctionFailsBuild(t *testing.T) {
	p := program.New("Node2D")
	require.NoError(t, p.AddFunction(program.Function{
		Name:   "double",
		Params: []program.Param{{Name: "x", Type: ir.TypeInt}},
		Return: ir.TypeInt,
	}))
	entry := addNode(t, p, "double", engine.KindFunctionEntry, "function", "double")
	result := addNode(t, p, "double", engine.KindFunctionResult, "function", "double")
	link(t, p, program.Out(entry, 0), program.In(result, 0))

	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	call := addNode(t, p, program.EventGraphName, engine.KindCallScriptFunction, "function", "double")
	link(t, p, program.Out(ev, 0), program.In(call, 0))

	_, err := Build(p.Snapshot())
	require.NoError(t, err)

	require.NoError(t, p.RemoveFunction("double"))
	log, err := Build(p.Snapshot())
	require.Error(t, err)
	assert.True(t, log.HasErrors())
	assert.Contains(t, codes(log.Errors()), engine.CodeFunctionMissing)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Error(), "build failed")
}

func TestRequiredInputMustBeConnected(t *testing.T) {
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	loop := addNode(t, p, program.EventGraphName, engine.KindForEach)
	link(t, p, program.Out(ev, 0), program.In(loop, 0))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	require.Len(t, log.Errors(), 1)
	e := log.Errors()[0]
	assert.Equal(t, ErrRequiredInput, e.Code)
	assert.Equal(t, loop, e.Position.NodeID)
	assert.Equal(t, program.EventGraphName, e.Position.Graph)
}

func TestDataCycleThroughPureNodes(t *testing.T) {
	p := program.New("Node2D")
	a := addNode(t, p, program.EventGraphName, engine.KindOperator, "op", "+")
	b := addNode(t, p, program.EventGraphName, engine.KindOperator, "op", "+")
	link(t, p, program.Out(a, 0), program.In(b, 0))
	link(t, p, program.Out(b, 0), program.In(a, 0))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	require.Equal(t, []string{ErrDataCycle}, codes(log.Errors()))
	assert.Contains(t, log.Errors()[0].Message, fmt.Sprintf("%d -> %d -> %d", a, b, a))
}

func TestSteppedNodeBreaksDataCycle(t *testing.T) {
	p := program.New("Node2D")
	require.NoError(t, p.AddVariable(program.Variable{Name: "n", Type: ir.TypeInt}))
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	set := addNode(t, p, program.EventGraphName, engine.KindSetVariable, "variable", "n")
	add := addNode(t, p, program.EventGraphName, engine.KindOperator, "op", "+")
	link(t, p, program.Out(ev, 0), program.In(set, 0))
	link(t, p, program.Out(set, 1), program.In(add, 0))
	link(t, p, program.Out(add, 0), program.In(set, 1))

	log := &diag.Log{}
	ValidateAndBuild(p.Snapshot(), log)
	assert.NotContains(t, codes(log.Entries()), ErrDataCycle)
}

func TestMissingEventGraph(t *testing.T) {
	p := program.NewEmpty("Node")
	log, err := Build(p.Snapshot())
	require.Error(t, err)
	assert.Equal(t, []string{ErrMissingEventGraph}, codes(log.Errors()))
}

func TestUnknownKindIsReported(t *testing.T) {
	p := program.New("Node")
	require.NoError(t, p.AddNode(program.EventGraphName, &program.Node{ID: p.NextNodeID(), Kind: "teleport"}))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	assert.Equal(t, []string{ErrUnknownKind}, codes(log.Errors()))
}

func TestUnreachableNodeWarns(t *testing.T) {
	p, _ := emitProgram(t)
	addNode(t, p, program.EventGraphName, engine.KindEmitSignal, "signal", "hit")

	log := &diag.Log{}
	errs, warnings := ValidateAndBuild(p.Snapshot(), log)
	assert.Zero(t, errs)
	assert.Equal(t, 1, warnings)
	assert.Equal(t, []string{WarnUnreachable}, codes(log.Warnings()))
}

func TestEditedSignalMakesLayoutStale(t *testing.T) {
	p, emit := emitProgram(t)
	require.NoError(t, p.SetSignalArgs("hit", []program.Param{
		{Name: "damage", Type: ir.TypeInt},
		{Name: "source", Type: ir.TypeString},
	}))

	log := &diag.Log{}
	errs, _ := ValidateAndBuild(p.Snapshot(), log)
	assert.Equal(t, 1, errs)
	assert.Equal(t, []string{engine.CodeSignalArgCount}, codes(log.Errors()))
	require.Equal(t, []string{WarnStaleLayout}, codes(log.Warnings()))
	assert.Equal(t, emit, log.Warnings()[0].Position.NodeID)
}

func TestCallTargetCheckedAgainstClassDB(t *testing.T) {
	db := engine.StaticClassDB{
		"Node":     {},
		"Node2D":   {Parent: "Node", Methods: []string{"rotate"}},
		"Sprite2D": {Parent: "Node2D", Methods: []string{"play"}},
	}
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	self := addNode(t, p, program.EventGraphName, engine.KindSelf)
	call := addNode(t, p, program.EventGraphName, engine.KindCallMethod, "method", "play", "class", "Sprite2D")
	link(t, p, program.Out(ev, 0), program.In(call, 0))
	link(t, p, program.Out(self, 0), program.In(call, 1))

	// without a class database only the shape is checked
	_, err := Build(p.Snapshot())
	require.NoError(t, err)

	log, err := Build(p.Snapshot(), WithClassDB(db))
	require.Error(t, err)
	got := codes(log.Errors())
	assert.Contains(t, got, ErrIncompatibleLink)
	assert.Contains(t, got, engine.CodeMethodUnknown)
}

func TestCallBuiltinAgainstCustomFunctions(t *testing.T) {
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	call := addNode(t, p, program.EventGraphName, engine.KindCallBuiltin, "function", "print")
	link(t, p, program.Out(ev, 0), program.In(call, 0))

	_, err := Build(p.Snapshot())
	require.NoError(t, err)

	log, err := Build(p.Snapshot(), WithFunctions(engine.NewFunctionTable()))
	require.Error(t, err)
	assert.Contains(t, codes(log.Errors()), engine.CodeBuiltinMissing)
}

func TestNonNormalizedNameWarns(t *testing.T) {
	p := program.New("Node2D")
	addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "cafe\u0301")

	log := &diag.Log{}
	errs, warnings := ValidateAndBuild(p.Snapshot(), log)
	assert.Zero(t, errs)
	assert.Equal(t, 1, warnings)
	assert.Equal(t, []string{WarnNotNormalized}, codes(log.Warnings()))
}

func TestFunctionWithoutEntryWarns(t *testing.T) {
	p, _ := emitProgram(t)
	require.NoError(t, p.AddFunction(program.Function{Name: "noop"}))

	log := &diag.Log{}
	errs, _ := ValidateAndBuild(p.Snapshot(), log)
	assert.Zero(t, errs)
	assert.Equal(t, []string{WarnNoEntry}, codes(log.Warnings()))
}

func TestBuildCollectsEveryProblem(t *testing.T) {
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	addNode(t, p, program.EventGraphName, engine.KindGetVariable, "variable", "missing")
	loop := addNode(t, p, program.EventGraphName, engine.KindForEach)
	link(t, p, program.Out(ev, 0), program.In(loop, 0))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	got := codes(log.Errors())
	assert.Contains(t, got, engine.CodeVariableUndefined)
	assert.Contains(t, got, ErrRequiredInput)
}

func TestInputDefaultMustFitPinType(t *testing.T) {
	p := program.New("Node2D")
	ev := addNode(t, p, program.EventGraphName, engine.KindEvent, "event", "ready")
	n, err := engine.NewNode(engine.Layout{Program: p.Snapshot()}, engine.KindForLoop, p.NextNodeID(), nil)
	require.NoError(t, err)
	n.Inputs[1].Default = ir.Float(1.5)
	n.Inputs[2].Default = ir.Nil{}
	require.NoError(t, p.AddNode(program.EventGraphName, n))
	link(t, p, program.Out(ev, 0), program.In(n.ID, 0))

	log, err := Build(p.Snapshot())
	require.Error(t, err)
	assert.Equal(t, []string{ErrBadDefault, ErrBadDefault}, codes(log.Errors()))
	assert.Equal(t, "inputs[1]", log.Errors()[0].Position.Field)

	// Int widens into a Float slot.
	q, _ := emitProgram(t)
	sqrt := addNode(t, q, program.EventGraphName, engine.KindCallBuiltin, "function", "sqrt")
	require.NoError(t, q.SetPinDefault(program.In(sqrt, 0), ir.Int(4)))
	_, err = Build(q.Snapshot())
	assert.NoError(t, err)
}
