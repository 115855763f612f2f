package engine

import (
	"fmt"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

func init() {
	RegisterKind(KindSpec{Kind: KindGetVariable, Pins: getVariablePins, Step: getVariableStep, Validate: variableValidate})
	RegisterKind(KindSpec{Kind: KindSetVariable, Pins: setVariablePins, Step: setVariableStep, Validate: variableValidate})
	RegisterKind(KindSpec{Kind: KindConstant, Pins: constantPins, Step: constantStep})
	RegisterKind(KindSpec{Kind: KindOperator, Pins: operatorPins, Step: operatorStep, Validate: operatorValidate})
	RegisterKind(KindSpec{Kind: KindSelf, Pins: selfPins, Step: selfStep, Override: selfOverride})
}

func variableType(l Layout, name string) ir.Type {
	if l.Program == nil {
		return ir.TypeVariant
	}
	if v, ok := l.Program.Variable(name); ok {
		return v.Type
	}
	return ir.TypeVariant
}

func getVariablePins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	t := variableType(l, propString(props, "variable"))
	return nil, []program.Pin{program.DataOut("value", t)}, nil
}

func getVariableStep(c *Context) (Exit, error) {
	v, err := c.Variable(c.Node().PropString("variable"))
	if err != nil {
		return Stop, err
	}
	c.SetOutput(0, v)
	return Stop, nil
}

func setVariablePins(l Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	t := variableType(l, propString(props, "variable"))
	return []program.Pin{program.ControlIn("in"), program.DataIn("value", t, nil)},
		[]program.Pin{program.ControlOut("out"), program.DataOut("value", t)}, nil
}

func setVariableStep(c *Context) (Exit, error) {
	name := c.Node().PropString("variable")
	if err := c.SetVariable(name, c.Input(0)); err != nil {
		return Stop, err
	}
	v, err := c.Variable(name)
	if err != nil {
		return Stop, err
	}
	c.SetOutput(0, v)
	return 0, nil
}

func variableValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	name := n.PropString("variable")
	if _, ok := env.Program.Variable(name); !ok {
		log.Errorf(env.Pos(n, "variable"), CodeVariableUndefined, "variable %q is not declared", name)
	}
}

func constantPins(_ Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	v, ok := props["value"]
	if !ok || v == nil {
		v = ir.Nil{}
	}
	return nil, []program.Pin{program.DataOut("value", v.Type())}, nil
}

func constantStep(c *Context) (Exit, error) {
	v := c.Node().Prop("value")
	if v == nil {
		v = ir.Nil{}
	}
	c.SetOutput(0, v)
	return Stop, nil
}

func operatorPins(_ Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	op := ir.Operator(propString(props, "op"))
	if !op.Valid() {
		return nil, nil, fmt.Errorf("unknown operator %q", op)
	}
	ins := []program.Pin{program.DataIn("a", ir.TypeVariant, nil)}
	if !op.Unary() {
		ins = append(ins, program.DataIn("b", ir.TypeVariant, nil))
	}
	return ins, []program.Pin{program.DataOut("result", ir.TypeVariant)}, nil
}

func operatorStep(c *Context) (Exit, error) {
	op := ir.Operator(c.Node().PropString("op"))
	var b ir.Value = ir.Nil{}
	if c.NumInputs() > 1 {
		b = c.Input(1)
	}
	v, err := ir.Evaluate(op, c.Input(0), b)
	if err != nil {
		return Stop, err
	}
	c.SetOutput(0, v)
	return Stop, nil
}

func operatorValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	op := ir.Operator(n.PropString("op"))
	if !op.Valid() {
		log.Errorf(env.Pos(n, "op"), CodeInvalidOperator, "unknown operator %q", op)
	}
}

func selfPins(Layout, map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	return nil, []program.Pin{program.DataOut("self", ir.TypeObject)}, nil
}

func selfStep(c *Context) (Exit, error) {
	c.SetOutput(0, ir.Object{Kind: ir.ObjectHost, Host: c.Owner()})
	return Stop, nil
}

func selfOverride(s *program.Snapshot, _ *program.Node, ref program.PinRef, base program.ResolvedType) program.ResolvedType {
	if ref.Dir == program.Output {
		base.ClassName = s.BaseClass()
	}
	return base
}
