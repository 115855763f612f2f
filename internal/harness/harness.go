package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/roach88/vscript/internal/builder"
	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/engine"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
	"github.com/roach88/vscript/internal/testutil"
)

// DefaultOwner is the owner path used when a scenario names none.
const DefaultOwner = "Owner"

// Harness executes one scenario. Chain ids and trace sequence numbers are
// deterministic.
type Harness struct {
	scenario *Scenario
	clock    *testutil.DeterministicClock
	chains   *testutil.FixedUIDGenerator
	result   *Result
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Load the program file and build it; build errors abort the run
//  2. Attach it to a recording owner
//  3. Apply variable overrides
//  4. Execute steps, checking each expect clause
//  5. Record final variables and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for cancellation.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	prog, err := loadProgram(scenario.Program)
	if err != nil {
		return nil, err
	}
	if _, err := builder.Build(prog.Snapshot()); err != nil {
		return nil, fmt.Errorf("program %s: %w", scenario.Program, err)
	}

	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewDeterministicClock(),
		chains:   testutil.NewFixedUIDGenerator("chain"),
		result:   NewResult(),
	}
	owner := h.newOwner(prog.Snapshot())

	opts := []engine.Option{
		engine.WithChainIDs(h.chains),
		engine.WithClock(engine.NewClock()),
		engine.WithPrinter(func(s string) {
			h.record(TraceEvent{Type: EventPrint, Text: s})
		}),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	inst := engine.Instantiate(prog, owner, opts...)

	if err := h.applyVariables(inst); err != nil {
		return nil, err
	}
	if err := h.executeSteps(ctx, inst); err != nil {
		return nil, err
	}
	if err := h.captureVariables(inst); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func loadProgram(path string) (*program.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program: %w", err)
	}
	defer f.Close()

	prog, log, err := codec.Load(f, codec.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load program %s: %w", path, err)
	}
	for _, w := range log.Warnings() {
		slog.Debug("program load warning", "path", path, "warning", w.Error())
	}
	return prog, nil
}

func (h *Harness) record(e TraceEvent) int {
	e.Seq = h.clock.Next()
	h.result.Trace = append(h.result.Trace, e)
	return len(h.result.Trace) - 1
}

func (h *Harness) applyVariables(inst *engine.Instance) error {
	names := make([]string, 0, len(h.scenario.Variables))
	for name := range h.scenario.Variables {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v, err := ir.FromGo(h.scenario.Variables[name])
		if err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		if err := inst.SetVariable(name, v); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
	}
	return nil
}

func (h *Harness) captureVariables(inst *engine.Instance) error {
	for _, decl := range inst.Program().Snapshot().Variables() {
		v, err := inst.Variable(decl.Name)
		if err != nil {
			return fmt.Errorf("variable %q: %w", decl.Name, err)
		}
		raw, err := render(v)
		if err != nil {
			return fmt.Errorf("variable %q: %w", decl.Name, err)
		}
		h.result.Variables[decl.Name] = raw
	}
	return nil
}

// executeSteps runs every step and validates its expect clause. Runtime
// errors are recorded in the trace, not returned.
func (h *Harness) executeSteps(ctx context.Context, inst *engine.Instance) error {
	for i, step := range h.scenario.Steps {
		args, err := toValues(step.Args)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		rendered, err := renderAll(args)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		var ret ir.Value
		if step.Trigger != "" {
			h.record(TraceEvent{Type: EventTrigger, Name: step.Trigger, Args: rendered})
			err = inst.Trigger(ctx, step.Trigger, args...)
		} else {
			idx := h.record(TraceEvent{Type: EventCall, Name: step.Call, Args: rendered})
			ret, err = inst.Call(ctx, step.Call, args...)
			if err == nil {
				raw, rerr := render(ret)
				if rerr != nil {
					return fmt.Errorf("steps[%d]: %w", i, rerr)
				}
				h.result.Trace[idx].Result = raw
			}
		}

		code := ""
		if err != nil {
			code = errorCode(err)
			h.record(TraceEvent{Type: EventError, Name: stepName(step), Code: code})
		}
		h.checkExpect(i, step, code, err, ret)

		slog.Debug("scenario step completed",
			"scenario", h.scenario.Name,
			"step", i,
			"name", stepName(step),
			"code", code,
		)
	}
	return nil
}

func (h *Harness) checkExpect(i int, step Step, code string, err error, ret ir.Value) {
	want := step.Expect
	switch {
	case want != nil && want.Error != "":
		if code != want.Error {
			h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", i, stepName(step), want.Error, describe(code)))
		}
		return
	case err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, stepName(step), err))
		return
	}
	if want == nil || want.Result == nil {
		return
	}
	expected, cerr := ir.FromGo(want.Result)
	if cerr != nil {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected result: %v", i, stepName(step), cerr))
		return
	}
	if !valuesMatch(expected, ret) {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected result %s, got %s", i, stepName(step), ir.Stringify(expected), ir.Stringify(ret)))
	}
}

func stepName(s Step) string {
	if s.Trigger != "" {
		return "trigger " + s.Trigger
	}
	return "call " + s.Call
}

func describe(code string) string {
	if code == "" {
		return "success"
	}
	return code
}

// errorCode returns the runtime error code carried by err, or "ERROR".
func errorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

// valuesMatch compares exactly, falling back to == semantics so 8 matches
// 8.0.
func valuesMatch(want, got ir.Value) bool {
	if ir.Equal(want, got) {
		return true
	}
	eq, err := ir.Evaluate(ir.OpEq, want, got)
	return err == nil && ir.Equal(eq, ir.Bool(true))
}

func toValues(args []any) ([]ir.Value, error) {
	out := make([]ir.Value, len(args))
	for i, a := range args {
		v, err := ir.FromGo(a)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func render(v ir.Value) (json.RawMessage, error) {
	data, err := ir.ToJSON(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func renderAll(vs []ir.Value) ([]json.RawMessage, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, len(vs))
	for i, v := range vs {
		raw, err := render(v)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// recordingOwner is the scenario's host object. Signals and method calls
// land in the trace.
type recordingOwner struct {
	h       *Harness
	path    string
	class   string
	methods map[string]any
}

func (h *Harness) newOwner(snap *program.Snapshot) *recordingOwner {
	o := &recordingOwner{
		h:       h,
		path:    h.scenario.Owner,
		class:   h.scenario.Class,
		methods: h.scenario.Methods,
	}
	if o.path == "" {
		o.path = DefaultOwner
	}
	if o.class == "" {
		o.class = snap.BaseClass()
	}
	return o
}

func (o *recordingOwner) Path() string  { return o.path }
func (o *recordingOwner) Class() string { return o.class }

func (o *recordingOwner) EmitSignal(name string, args []ir.Value) error {
	rendered, err := renderAll(args)
	if err != nil {
		return err
	}
	o.h.record(TraceEvent{Type: EventSignal, Name: name, Args: rendered})
	return nil
}

func (o *recordingOwner) CallMethod(method string, args []ir.Value) (ir.Value, error) {
	rendered, err := renderAll(args)
	if err != nil {
		return nil, err
	}
	idx := o.h.record(TraceEvent{Type: EventMethod, Name: method, Args: rendered})
	raw, ok := o.methods[method]
	if !ok {
		return nil, fmt.Errorf("owner %s has no method %q", o.path, method)
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("method %q result: %w", method, err)
	}
	if o.h.result.Trace[idx].Result, err = render(v); err != nil {
		return nil, err
	}
	return v, nil
}
