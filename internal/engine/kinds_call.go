package engine

import (
	"fmt"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

func init() {
	RegisterKind(KindSpec{Kind: KindCallBuiltin, Pins: callBuiltinPins, Step: callBuiltinStep, Validate: callBuiltinValidate})
	RegisterKind(KindSpec{Kind: KindCallMethod, Pins: callMethodPins, Step: callMethodStep, Validate: callMethodValidate, Override: callMethodOverride})
	RegisterKind(KindSpec{Kind: KindCallScriptFunction, Pins: callScriptPins, Step: callScriptStep, Validate: callScriptValidate})
	RegisterKind(KindSpec{Kind: KindFunctionEntry, Pins: functionEntryPins, Step: functionEntryStep, Validate: functionEntryValidate})
	RegisterKind(KindSpec{Kind: KindFunctionResult, Pins: functionResultPins, Step: functionResultStep})
	RegisterKind(KindSpec{Kind: KindEmitSignal, Pins: emitSignalPins, Step: emitSignalStep, Validate: emitSignalValidate})
}

func paramPins(ps []program.Param) []program.Pin {
	pins := make([]program.Pin, len(ps))
	for i, p := range ps {
		pins[i] = program.DataIn(p.Name, p.Type, nil)
	}
	return pins
}

// call_builtin

func callBuiltinPins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	name := propString(props, "function")
	fn, ok := l.Functions.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("builtin %q not found", name)
	}
	var ins, outs []program.Pin
	if !fn.Pure {
		ins = append(ins, program.ControlIn("in"))
		outs = append(outs, program.ControlOut("out"))
	}
	ins = append(ins, paramPins(fn.Params)...)
	if fn.Return != ir.TypeNil {
		outs = append(outs, program.DataOut("result", fn.Return))
	}
	return ins, outs, nil
}

func callBuiltinStep(c *Context) (Exit, error) {
	name := c.Node().PropString("function")
	fn, ok := c.Functions().Lookup(name)
	if !ok {
		return Stop, newError(ErrCodeFunctionNotFound, "builtin %q not found", name)
	}
	if len(fn.Params) != c.NumInputs() {
		return Stop, newError(ErrCodeStepFailed, "builtin %q takes %d arguments, node has %d inputs", name, len(fn.Params), c.NumInputs())
	}
	args := make([]ir.Value, len(fn.Params))
	for i, p := range fn.Params {
		v, err := ir.Convert(c.Input(i), p.Type)
		if err != nil {
			return Stop, &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("argument %q of %s", p.Name, name), NodeID: -1, Err: err}
		}
		args[i] = v
	}
	result, err := fn.Call(c, args)
	if err != nil {
		return Stop, err
	}
	if c.NumOutputs() > 0 {
		c.SetOutput(0, result)
	}
	return then(c), nil
}

func callBuiltinValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	name := n.PropString("function")
	fn, ok := env.Functions.Lookup(name)
	if !ok {
		log.Errorf(env.Pos(n, "function"), CodeBuiltinMissing, "builtin function %q does not exist", name)
		return
	}
	if got := len(n.DataInputs()); got != len(fn.Params) {
		log.Errorf(env.Pos(n, "inputs"), CodeFunctionArgCount, "builtin %q takes %d arguments, node has %d inputs", name, len(fn.Params), got)
	}
}

// call_method invokes a host method on the "target" input, or on the owner
// when target is left unconnected. Prop "args" is the argument count.

func callMethodPins(_ Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	if propString(props, "method") == "" {
		return nil, nil, fmt.Errorf("method name is empty")
	}
	target := program.DataIn("target", ir.TypeObject, nil)
	target.ClassName = propString(props, "class")
	ins := []program.Pin{program.ControlIn("in"), target}
	for i := range propInt(props, "args", 0) {
		ins = append(ins, program.DataIn(fmt.Sprintf("arg%d", i), ir.TypeVariant, nil))
	}
	return ins, []program.Pin{program.ControlOut("out"), program.DataOut("result", ir.TypeVariant)}, nil
}

func callMethodStep(c *Context) (Exit, error) {
	method := c.Node().PropString("method")
	var caller MethodCaller = c.Owner()
	if c.InputConnected(0) {
		obj, ok := c.Input(0).(ir.Object)
		if !ok || obj.Kind != ir.ObjectHost {
			return Stop, newError(ErrCodeInvalidTarget, "call %q on %s", method, ir.Stringify(c.Input(0)))
		}
		mc, ok := obj.Host.(MethodCaller)
		if !ok {
			return Stop, newError(ErrCodeInvalidTarget, "call %q: target %T has no methods", method, obj.Host)
		}
		caller = mc
	}
	args := append([]ir.Value(nil), c.Inputs()[1:]...)
	result, err := caller.CallMethod(method, args)
	if err != nil {
		return Stop, fmt.Errorf("call %q: %w", method, err)
	}
	c.SetOutput(0, result)
	return 0, nil
}

// callMethodOverride narrows the target pin to the class of whatever feeds
// it, or to the program's base class when it is unconnected and so defaults
// to the owner.
func callMethodOverride(s *program.Snapshot, n *program.Node, ref program.PinRef, base program.ResolvedType) program.ResolvedType {
	if ref.Dir != program.Input {
		return base
	}
	pin, ok := n.Pin(ref.Dir, ref.Port)
	if !ok || pin.Name != "target" {
		return base
	}
	if src, ok := s.Source(ref); ok {
		if rt, err := s.ResolveType(src); err == nil && rt.ClassName != "" {
			base.ClassName = rt.ClassName
		}
		return base
	}
	base.ClassName = s.BaseClass()
	return base
}

func callMethodValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	method := n.PropString("method")
	if method == "" {
		log.Errorf(env.Pos(n, "method"), CodeMethodMissing, "call_method has no method name")
		return
	}
	if env.ClassDB == nil {
		return
	}
	port, ok := n.PortByName(program.Input, "target")
	if !ok {
		return
	}
	rt, err := env.Program.ResolveType(program.In(n.ID, port))
	if err != nil || rt.ClassName == "" {
		return
	}
	if !env.ClassDB.ClassExists(rt.ClassName) {
		log.Errorf(env.Pos(n, "target"), CodeClassUnknown, "target class %q does not exist", rt.ClassName)
		return
	}
	if !env.ClassDB.HasMethod(rt.ClassName, method) {
		log.Errorf(env.Pos(n, "method"), CodeMethodUnknown, "class %q has no method %q", rt.ClassName, method)
	}
}

// call_script_function runs another graph of the same program as a nested
// chain.

func callScriptPins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	name := propString(props, "function")
	fn, ok := lookupFunction(l, name)
	if !ok {
		return nil, nil, fmt.Errorf("script function %q not found", name)
	}
	ins := append([]program.Pin{program.ControlIn("in")}, paramPins(fn.Params)...)
	outs := []program.Pin{program.ControlOut("out")}
	if fn.Return != ir.TypeNil {
		outs = append(outs, program.DataOut("result", fn.Return))
	}
	return ins, outs, nil
}

func lookupFunction(l Layout, name string) (*program.Function, bool) {
	if l.Program == nil {
		return nil, false
	}
	return l.Program.Function(name)
}

func callScriptStep(c *Context) (Exit, error) {
	name := c.Node().PropString("function")
	result, err := c.CallFunction(name, append([]ir.Value(nil), c.Inputs()...))
	if err != nil {
		return Stop, err
	}
	if c.NumOutputs() > 0 {
		c.SetOutput(0, result)
	}
	return 0, nil
}

func callScriptValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	name := n.PropString("function")
	fn, ok := env.Program.Function(name)
	if !ok {
		log.Errorf(env.Pos(n, "function"), CodeFunctionMissing, "script function %q does not exist", name)
		return
	}
	if got := len(n.DataInputs()); got != len(fn.Params) {
		log.Errorf(env.Pos(n, "inputs"), CodeFunctionArgCount, "function %q takes %d arguments, node has %d inputs", name, len(fn.Params), got)
	}
}

// function_entry starts a function graph and exposes the call arguments.

func functionEntryPins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	outs := []program.Pin{program.ControlOut("then")}
	if fn, ok := lookupFunction(l, propString(props, "function")); ok {
		for _, p := range fn.Params {
			outs = append(outs, program.DataOut(p.Name, p.Type))
		}
	}
	return nil, outs, nil
}

func functionEntryStep(c *Context) (Exit, error) {
	args := c.ChainArgs()
	for i := 0; i < c.NumOutputs(); i++ {
		if i < len(args) {
			c.SetOutput(i, args[i])
		}
	}
	return 0, nil
}

func functionEntryValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	name := n.PropString("function")
	if _, ok := env.Program.Function(name); !ok {
		log.Errorf(env.Pos(n, "function"), CodeFunctionMissing, "function entry for %q, which does not exist", name)
	}
}

// function_result ends the chain and hands "value" back to the caller.

func functionResultPins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	ins := []program.Pin{program.ControlIn("in")}
	ret := ir.TypeVariant
	if fn, ok := lookupFunction(l, propString(props, "function")); ok {
		ret = fn.Return
	}
	if ret != ir.TypeNil {
		ins = append(ins, program.DataIn("value", ret, nil))
	}
	return ins, nil, nil
}

func functionResultStep(c *Context) (Exit, error) {
	var v ir.Value = ir.Nil{}
	if c.NumInputs() > 0 {
		v = c.Input(0)
	}
	c.Return(v)
	return Stop, nil
}

// emit_signal dispatches prop "signal" to the owner with its data inputs
// as positional arguments.

func emitSignalPins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	name := propString(props, "signal")
	if l.Program == nil {
		return nil, nil, fmt.Errorf("signal %q not found", name)
	}
	sig, ok := l.Program.Signal(name)
	if !ok {
		return nil, nil, fmt.Errorf("signal %q not found", name)
	}
	ins := append([]program.Pin{program.ControlIn("in")}, paramPins(sig.Args)...)
	return ins, []program.Pin{program.ControlOut("out")}, nil
}

func emitSignalStep(c *Context) (Exit, error) {
	name := c.Node().PropString("signal")
	if _, ok := c.Program().Signal(name); !ok {
		return Stop, newError(ErrCodeSignalUndefined, "signal %q is not declared", name)
	}
	if c.NumInputs() > MaxSignalArgs {
		return Stop, newError(ErrCodeTooManyArguments, "signal %q dispatched with %d arguments, at most %d supported", name, c.NumInputs(), MaxSignalArgs)
	}
	args := append([]ir.Value(nil), c.Inputs()...)
	if err := c.Owner().EmitSignal(name, args); err != nil {
		return Stop, fmt.Errorf("emit %q: %w", name, err)
	}
	return 0, nil
}

func emitSignalValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	name := n.PropString("signal")
	sig, ok := env.Program.Signal(name)
	if !ok {
		log.Errorf(env.Pos(n, "signal"), CodeSignalUndefined, "signal %q is not declared", name)
		return
	}
	if len(sig.Args) > MaxSignalArgs {
		log.Errorf(env.Pos(n, "signal"), CodeTooManySignalArgs, "signal %q declares %d arguments, at most %d supported", name, len(sig.Args), MaxSignalArgs)
	}
	if got := len(n.DataInputs()); got != len(sig.Args) {
		log.Errorf(env.Pos(n, "inputs"), CodeSignalArgCount, "signal %q takes %d arguments, node has %d inputs", name, len(sig.Args), got)
	}
}
