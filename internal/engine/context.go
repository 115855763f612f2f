package engine

import (
	"context"
	"fmt"

	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// Context is what a step function sees: its node, the gathered input
// values, the output slots, and the running chain. A Context is only valid
// for the duration of one step.
type Context struct {
	chain *chain
	ni    *nodeInstance

	inputs    []ir.Value
	outputs   []ir.Value
	entryPort int
	resumed   bool

	pushResume bool
	err        error
}

// Context returns the chain's context.Context.
func (c *Context) Context() context.Context { return c.chain.ctx }

// Node returns the node being stepped.
func (c *Context) Node() *program.Node { return c.ni.node }

// NumInputs returns the number of data inputs.
func (c *Context) NumInputs() int { return len(c.inputs) }

// Input returns the i-th data input, counted over data inputs only.
func (c *Context) Input(i int) ir.Value {
	if i < 0 || i >= len(c.inputs) {
		return ir.Nil{}
	}
	return c.inputs[i]
}

// Inputs returns all data input values in pin order.
func (c *Context) Inputs() []ir.Value { return c.inputs }

// InputByName returns the data input with the given pin name.
func (c *Context) InputByName(name string) (ir.Value, bool) {
	for i, port := range c.ni.dataIn {
		if c.ni.node.Inputs[port].Name == name {
			return c.inputs[i], true
		}
	}
	return nil, false
}

// InputConnected reports whether the i-th data input has a source.
func (c *Context) InputConnected(i int) bool {
	if i < 0 || i >= len(c.ni.dataIn) {
		return false
	}
	return c.ni.node.Inputs[c.ni.dataIn[i]].Connected()
}

// NumOutputs returns the number of data outputs.
func (c *Context) NumOutputs() int { return len(c.outputs) }

// SetOutput writes the i-th data output, converting to the pin's declared
// type. A conversion failure fails the step.
func (c *Context) SetOutput(i int, v ir.Value) {
	if i < 0 || i >= len(c.outputs) {
		if c.err == nil {
			c.err = newError(ErrCodeStepFailed, "output %d out of range", i)
		}
		return
	}
	pin := c.dataOutPin(i)
	if v == nil {
		v = ir.Nil{}
	}
	if pin != nil && pin.Type != ir.TypeVariant {
		cv, err := ir.Convert(v, pin.Type)
		if err != nil {
			if c.err == nil {
				c.err = &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("output %q", pin.Name), NodeID: -1, Err: err}
			}
			return
		}
		v = cv
	}
	c.outputs[i] = v
}

func (c *Context) dataOutPin(i int) *program.Pin {
	for port, ord := range c.ni.dataOutOrdinal {
		if ord == i {
			return &c.ni.node.Outputs[port]
		}
	}
	return nil
}

// EntryPort is the index, over control inputs, of the pin that started this
// step.
func (c *Context) EntryPort() int { return c.entryPort }

// Resumed reports whether this step re-enters a node that called
// PushResume, after the sub-chain it started has ended.
func (c *Context) Resumed() bool { return c.resumed }

// PushResume asks the chain to step this node again once the path started
// by the exit returned from this step ends. Loops use it.
func (c *Context) PushResume() { c.pushResume = true }

// Memory is per-chain, per-node scratch state. Loop counters live here so
// that nested or concurrent chains never see each other's iteration.
func (c *Context) Memory() map[string]any {
	m, ok := c.chain.memory[c.ni.node.ID]
	if !ok {
		m = make(map[string]any)
		c.chain.memory[c.ni.node.ID] = m
	}
	return m
}

// Owner returns the owner of the running instance.
func (c *Context) Owner() Owner { return c.chain.inst.owner }

// Instance returns the running instance.
func (c *Context) Instance() *Instance { return c.chain.inst }

// Program returns the snapshot the chain runs against.
func (c *Context) Program() *program.Snapshot { return c.chain.view.snap }

// ChainArgs returns the arguments the chain was started with.
func (c *Context) ChainArgs() []ir.Value { return c.chain.args }

// Return finishes the chain with v as its result. Pending paths are
// dropped.
func (c *Context) Return(v ir.Value) {
	c.chain.returned = true
	c.chain.result = v
}

// Print sends text to the instance's printer.
func (c *Context) Print(s string) { c.chain.inst.opts.printer(s) }

// Functions returns the builtin function table.
func (c *Context) Functions() *FunctionTable { return c.chain.inst.opts.functions }

// ClassDB returns the host class database, which may be nil.
func (c *Context) ClassDB() ClassDB { return c.chain.inst.opts.classDB }

// Variable reads a declared variable of the running instance.
func (c *Context) Variable(name string) (ir.Value, error) {
	return c.chain.inst.variable(c.chain.view.snap, name)
}

// SetVariable assigns a declared variable of the running instance.
func (c *Context) SetVariable(name string, v ir.Value) error {
	return c.chain.inst.setVariable(c.chain.view.snap, name, v)
}

// CallFunction runs a script function of the same instance as a nested
// chain.
func (c *Context) CallFunction(name string, args []ir.Value) (ir.Value, error) {
	return c.chain.inst.callFunction(c.chain.ctx, c.chain.view, name, args)
}
