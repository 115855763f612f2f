package engine

import (
	"fmt"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

func init() {
	RegisterKind(KindSpec{Kind: KindEvent, Pins: eventPins, Step: eventStep, Validate: eventValidate})
	RegisterKind(KindSpec{Kind: KindBranch, Pins: branchPins, Step: branchStep})
	RegisterKind(KindSpec{Kind: KindSequence, Pins: sequencePins, Step: sequenceStep})
	RegisterKind(KindSpec{Kind: KindForLoop, Pins: forLoopPins, Step: forLoopStep, Validate: forLoopValidate})
	RegisterKind(KindSpec{Kind: KindForEach, Pins: forEachPins, Step: forEachStep})
	RegisterKind(KindSpec{Kind: KindWhile, Pins: whilePins, Step: whileStep})
}

func propString(props map[string]ir.Value, key string) string {
	if s, ok := props[key].(ir.String); ok {
		return string(s)
	}
	return ""
}

func propInt(props map[string]ir.Value, key string, def int64) int64 {
	switch v := props[key].(type) {
	case ir.Int:
		return int64(v)
	case ir.Float:
		return int64(v)
	}
	return def
}

// stringList reads a list-of-strings property stored either as an Array of
// String or as a PackedStringArray.
func stringList(v ir.Value) []string {
	switch x := v.(type) {
	case ir.PackedStringArray:
		return x
	case ir.Array:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(ir.String); ok {
				out = append(out, string(s))
			}
		}
		return out
	}
	return nil
}

// then is the exit of a node with a single control output, or Stop for
// pure nodes.
func then(c *Context) Exit {
	if len(c.ni.controlOut) == 0 {
		return Stop
	}
	return 0
}

// event: entry point of a chain. Prop "event" names the trigger; prop
// "args" lists the type names of the trigger arguments, one data output
// each.

func eventPins(_ Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	outs := []program.Pin{program.ControlOut("then")}
	for i, name := range stringList(props["args"]) {
		t, err := ir.ParseType(name)
		if err != nil {
			return nil, nil, fmt.Errorf("argument %d: %w", i, err)
		}
		outs = append(outs, program.DataOut(fmt.Sprintf("arg%d", i), t))
	}
	return nil, outs, nil
}

func eventStep(c *Context) (Exit, error) {
	args := c.ChainArgs()
	for i := 0; i < c.NumOutputs(); i++ {
		if i < len(args) {
			c.SetOutput(i, args[i])
		} else {
			c.SetOutput(i, ir.Zero(c.dataOutPin(i).Type))
		}
	}
	return 0, nil
}

func eventValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	if n.PropString("event") == "" {
		log.Errorf(env.Pos(n, "event"), CodeEventUnnamed, "event node has no event name")
	}
	for i, name := range stringList(n.Prop("args")) {
		if _, err := ir.ParseType(name); err != nil {
			log.Errorf(env.Pos(n, fmt.Sprintf("args[%d]", i)), CodeEventArgType, "%v", err)
		}
	}
}

func branchPins(Layout, map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	return []program.Pin{program.ControlIn("in"), program.DataIn("condition", ir.TypeBool, nil)},
		[]program.Pin{program.ControlOut("true"), program.ControlOut("false")}, nil
}

func branchStep(c *Context) (Exit, error) {
	if ir.Truthy(c.Input(0)) {
		return 0, nil
	}
	return 1, nil
}

// sequence fires each of its "steps" outputs in order, each after the
// previous path has ended.

func sequencePins(_ Layout, props map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	steps := propInt(props, "steps", 2)
	if steps < 1 {
		return nil, nil, fmt.Errorf("steps must be at least 1, got %d", steps)
	}
	outs := make([]program.Pin, steps)
	for i := range outs {
		outs[i] = program.ControlOut(fmt.Sprintf("then%d", i))
	}
	return []program.Pin{program.ControlIn("in")}, outs, nil
}

func sequenceStep(c *Context) (Exit, error) {
	mem := c.Memory()
	if !c.Resumed() {
		mem["next"] = 0
	}
	i := mem["next"].(int)
	if i >= len(c.ni.controlOut) {
		return Stop, nil
	}
	mem["next"] = i + 1
	if i+1 < len(c.ni.controlOut) {
		c.PushResume()
	}
	return Exit(i), nil
}

// for_loop counts index from first up to, not including, last by step.
// Bounds are read once, when the loop is entered.

func forLoopPins(Layout, map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	return []program.Pin{
			program.ControlIn("in"),
			program.DataIn("first", ir.TypeInt, nil),
			program.DataIn("last", ir.TypeInt, nil),
			program.DataIn("step", ir.TypeInt, ir.Int(1)),
		}, []program.Pin{
			program.ControlOut("each"),
			program.ControlOut("done"),
			program.DataOut("index", ir.TypeInt),
		}, nil
}

type loopState struct {
	index, last, step int64
}

func forLoopStep(c *Context) (Exit, error) {
	mem := c.Memory()
	var st *loopState
	if c.Resumed() {
		st = mem["loop"].(*loopState)
		st.index += st.step
	} else {
		first, ok1 := c.Input(0).(ir.Int)
		last, ok2 := c.Input(1).(ir.Int)
		step, ok3 := c.Input(2).(ir.Int)
		if !ok1 || !ok2 || !ok3 {
			return Stop, newError(ErrCodeTypeMismatch, "for_loop bounds must be Int, got %s, %s, %s",
				ir.TypeOf(c.Input(0)), ir.TypeOf(c.Input(1)), ir.TypeOf(c.Input(2)))
		}
		st = &loopState{index: int64(first), last: int64(last), step: int64(step)}
		if st.step == 0 {
			return Stop, fmt.Errorf("for_loop step is zero")
		}
		mem["loop"] = st
	}
	c.SetOutput(0, ir.Int(st.index))
	if (st.step > 0 && st.index < st.last) || (st.step < 0 && st.index > st.last) {
		c.PushResume()
		return 0, nil
	}
	return 1, nil
}

func forLoopValidate(env BuildEnv, n *program.Node, log *diag.Log) {
	port, ok := n.PortByName(program.Input, "step")
	if !ok {
		return
	}
	pin := &n.Inputs[port]
	if !pin.Connected() && ir.Equal(pin.Default, ir.Int(0)) {
		log.Warnf(env.Pos(n, "step"), CodeLoopStepZero, "for_loop step defaults to 0 and will fail at run time")
	}
}

// for_each walks a collection captured on entry: array elements, packed
// array elements, dictionary keys, string characters, or 0..n-1 for an Int.

func forEachPins(Layout, map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	coll := program.DataIn("collection", ir.TypeVariant, nil)
	coll.Required = true
	return []program.Pin{program.ControlIn("in"), coll},
		[]program.Pin{
			program.ControlOut("each"),
			program.ControlOut("done"),
			program.DataOut("element", ir.TypeVariant),
			program.DataOut("index", ir.TypeInt),
		}, nil
}

type eachState struct {
	items []ir.Value
	next  int
}

func forEachStep(c *Context) (Exit, error) {
	mem := c.Memory()
	var st *eachState
	if c.Resumed() {
		st = mem["each"].(*eachState)
	} else {
		items, err := elements(c.Input(0))
		if err != nil {
			return Stop, err
		}
		st = &eachState{items: items}
		mem["each"] = st
	}
	if st.next >= len(st.items) {
		return 1, nil
	}
	c.SetOutput(0, st.items[st.next])
	c.SetOutput(1, ir.Int(st.next))
	st.next++
	c.PushResume()
	return 0, nil
}

func elements(v ir.Value) ([]ir.Value, error) {
	switch x := v.(type) {
	case ir.Array:
		return x, nil
	case *ir.Dictionary:
		out := make([]ir.Value, 0, x.Len())
		for _, e := range x.Entries() {
			out = append(out, e.Key)
		}
		return out, nil
	case ir.String:
		out := make([]ir.Value, 0, len(x))
		for _, r := range string(x) {
			out = append(out, ir.String(string(r)))
		}
		return out, nil
	case ir.Int:
		if x < 0 {
			return nil, fmt.Errorf("for_each over negative count %d", x)
		}
		out := make([]ir.Value, x)
		for i := range out {
			out[i] = ir.Int(i)
		}
		return out, nil
	}
	if v != nil && v.Type().IsPacked() {
		arr, err := ir.Convert(v, ir.TypeArray)
		if err != nil {
			return nil, err
		}
		return arr.(ir.Array), nil
	}
	return nil, fmt.Errorf("cannot iterate over %s", ir.TypeOf(v))
}

func whilePins(Layout, map[string]ir.Value) ([]program.Pin, []program.Pin, error) {
	return []program.Pin{program.ControlIn("in"), program.DataIn("condition", ir.TypeBool, nil)},
		[]program.Pin{program.ControlOut("repeat"), program.ControlOut("exit")}, nil
}

// whileStep re-reads its condition every time it is resumed.
func whileStep(c *Context) (Exit, error) {
	if ir.Truthy(c.Input(0)) {
		c.PushResume()
		return 0, nil
	}
	return 1, nil
}
