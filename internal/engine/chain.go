package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/vscript/internal/ir"
	"github.com/roach88/vscript/internal/program"
)

// maxPullDepth bounds recursive evaluation of pure nodes. Pure nodes can
// form a data cycle through other pure nodes; the bound turns that into an
// error instead of a stack overflow.
const maxPullDepth = 256

// frame is an entry of a chain's pending stack: either a node that asked to
// be re-stepped when its sub-chain ends, or a further target of a control
// output with several connections.
type frame struct {
	node   int
	port   int
	resume bool
}

// chain is one synchronous walk of control pins. Everything here is local to
// the chain, so nested chains on the same instance never share state.
type chain struct {
	ctx    context.Context
	id     string
	seq    int64
	inst   *Instance
	view   *view
	entry  string
	args   []ir.Value
	budget *StepBudget

	outputs map[int][]ir.Value
	memory  map[int]map[string]any
	stack   []frame

	returned bool
	result   ir.Value
	pulls    int
}

// runChain runs one chain from the control input of node entryID.
func (inst *Instance) runChain(ctx context.Context, v *view, entryID int, entry string, args []ir.Value) (ir.Value, error) {
	c := &chain{
		ctx:     ctx,
		id:      inst.opts.ids.Generate(),
		seq:     inst.opts.clock.Next(),
		inst:    inst,
		view:    v,
		entry:   entry,
		args:    args,
		budget:  NewStepBudget(inst.opts.maxSteps),
		outputs: make(map[int][]ir.Value),
		memory:  make(map[int]map[string]any),
	}

	depth := inst.depth.Add(1)
	defer inst.depth.Add(-1)

	var err error
	if max := inst.opts.maxDepth; max > 0 && int(depth) > max {
		err = c.bind(entryID, newError(ErrCodeDepthExceeded, "nested chain depth %d exceeds %d", depth, max))
	} else {
		slog.Debug("chain started", "owner", inst.owner.Path(), "chain", c.id, "entry", entry, "depth", depth)
		err = c.run(entryID, 0)
	}
	c.finish(err)
	if err != nil {
		return nil, err
	}
	return c.result, nil
}

func (c *chain) finish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var re *RuntimeError
		if errors.As(err, &re) {
			RuntimeErrorsTotal.WithLabelValues(string(re.Code)).Inc()
			kind := ""
			if n, ok := c.view.snap.Node(re.NodeID); ok {
				kind = n.Kind
			}
			slog.Error("chain abandoned",
				"owner", re.Owner,
				"node", re.NodeID,
				"kind", kind,
				"chain", re.Chain,
				"code", re.Code,
				"error", err)
		}
	}
	ChainsTotal.WithLabelValues(result).Inc()
	if obs := c.inst.opts.observer; obs != nil {
		obs.OnChainEnd(ChainEvent{
			Chain: c.id,
			Seq:   c.seq,
			Owner: c.inst.owner.Path(),
			Entry: c.entry,
			Steps: c.budget.Current(),
			Err:   err,
		})
	}
}

// run is the chain loop: gather inputs, consult the debugger, step, follow
// the chosen control exit. When a path ends the pending stack supplies the
// next node to run, if any.
func (c *chain) run(nodeID, entryPort int) error {
	resumed := false
	for {
		if err := c.ctx.Err(); err != nil {
			return c.bind(nodeID, &RuntimeError{Code: ErrCodeCancelled, Message: "chain cancelled", NodeID: -1, Err: err})
		}
		if err := c.budget.Check(c.id); err != nil {
			return c.bind(nodeID, &RuntimeError{Code: ErrCodeStepsExceeded, Message: "step budget exhausted", NodeID: -1, Err: err})
		}

		ni, err := c.view.instance(nodeID)
		if err != nil {
			return c.bind(nodeID, err)
		}

		sc, err := c.newContext(ni, entryPort, resumed)
		if err != nil {
			return c.bind(nodeID, err)
		}

		if dbg := c.inst.opts.debugger; dbg != nil {
			owner := c.inst.owner.Path()
			if dbg.ShouldBreak(owner, nodeID, ni.node.Flags.Has(program.FlagBreakpoint)) {
				slog.Debug("chain suspended", "owner", owner, "node", nodeID, "chain", c.id)
				if err := dbg.Suspend(c.ctx, owner, nodeID); err != nil {
					return c.bind(nodeID, &RuntimeError{Code: ErrCodeCancelled, Message: "cancelled at breakpoint", NodeID: -1, Err: err})
				}
			}
		}

		exit, err := ni.spec.Step(sc)
		NodeStepsTotal.WithLabelValues(ni.node.Kind).Inc()
		if err == nil {
			err = sc.err
		}
		if err != nil {
			return c.bind(nodeID, err)
		}
		c.outputs[nodeID] = sc.outputs
		c.notifyStep(ni, exit, resumed, sc.outputs)

		if sc.pushResume {
			c.stack = append(c.stack, frame{node: nodeID, port: entryPort, resume: true})
		}

		var targets []program.PinRef
		if exit != Stop && !c.returned {
			if int(exit) < 0 || int(exit) >= len(ni.controlOut) {
				return c.bind(nodeID, newError(ErrCodeStepFailed, "step returned exit %d but node has %d control outputs", exit, len(ni.controlOut)))
			}
			targets = ni.node.Outputs[ni.controlOut[exit]].Links()
		}
		if c.returned {
			c.stack = nil
		}

		if len(targets) > 0 {
			for i := len(targets) - 1; i >= 1; i-- {
				c.stack = append(c.stack, frame{node: targets[i].Node, port: targets[i].Port})
			}
			nodeID, entryPort, resumed = targets[0].Node, targets[0].Port, false
			continue
		}

		if len(c.stack) == 0 {
			return nil
		}
		top := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		nodeID, entryPort, resumed = top.node, top.port, top.resume
	}
}

func (c *chain) notifyStep(ni *nodeInstance, exit Exit, resumed bool, outputs []ir.Value) {
	obs := c.inst.opts.observer
	if obs == nil {
		return
	}
	obs.OnStep(StepEvent{
		Chain:   c.id,
		Seq:     c.seq,
		Owner:   c.inst.owner.Path(),
		NodeID:  ni.node.ID,
		Kind:    ni.node.Kind,
		Exit:    exit,
		Resumed: resumed,
		Outputs: outputs,
	})
}

// newContext builds the step context for ni, pulling every data input.
// entryPort is the input port index of the control pin that fired.
func (c *chain) newContext(ni *nodeInstance, entryPort int, resumed bool) (*Context, error) {
	sc := &Context{
		chain:     c,
		ni:        ni,
		inputs:    make([]ir.Value, len(ni.dataIn)),
		outputs:   make([]ir.Value, ni.numDataOut()),
		entryPort: 0,
		resumed:   resumed,
	}
	if entryPort >= 0 && entryPort < len(ni.controlInOrd) && ni.controlInOrd[entryPort] >= 0 {
		sc.entryPort = ni.controlInOrd[entryPort]
	}
	for i, port := range ni.dataIn {
		v, err := c.pull(ni, port)
		if err != nil {
			return nil, err
		}
		sc.inputs[i] = v
	}
	return sc, nil
}

// pull resolves the value of a data input: the upstream output if
// connected, otherwise the pin's default. Pure sources are re-evaluated on
// every pull; stepped sources are read from this chain's record.
func (c *chain) pull(ni *nodeInstance, port int) (ir.Value, error) {
	pin := &ni.node.Inputs[port]
	links := pin.Links()
	if len(links) == 0 {
		if pin.Default == nil {
			return ir.Zero(pin.Type), nil
		}
		v, err := ir.Convert(pin.Default, pin.Type)
		if err != nil {
			return nil, &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("default of input %q", pin.Name), NodeID: -1, Err: err}
		}
		return v, nil
	}

	src := links[0]
	srcNI, err := c.view.instance(src.Node)
	if err != nil {
		return nil, err
	}
	ord := -1
	if src.Port < len(srcNI.dataOutOrdinal) {
		ord = srcNI.dataOutOrdinal[src.Port]
	}
	if ord < 0 {
		return nil, newError(ErrCodeStepFailed, "input %q is linked to a non-data pin %s", pin.Name, src)
	}

	var outs []ir.Value
	if srcNI.pure {
		outs, err = c.evaluatePure(srcNI)
		if err != nil {
			return nil, err
		}
	} else {
		rec, ok := c.outputs[src.Node]
		if !ok {
			e := newError(ErrCodeDataNotReady, "input %q reads node %d, which has not run in this chain", pin.Name, src.Node)
			return nil, e
		}
		outs = rec
	}

	v := outs[ord]
	if v == nil {
		v = ir.Nil{}
	}
	if pin.Type == ir.TypeVariant {
		return v, nil
	}
	cv, err := ir.Convert(v, pin.Type)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeTypeMismatch, Message: fmt.Sprintf("input %q", pin.Name), NodeID: -1, Err: err}
	}
	return cv, nil
}

// evaluatePure steps a pure node on demand and returns its data outputs.
func (c *chain) evaluatePure(ni *nodeInstance) ([]ir.Value, error) {
	c.pulls++
	defer func() { c.pulls-- }()
	if c.pulls > maxPullDepth {
		return nil, newError(ErrCodeStepFailed, "pure evaluation of node %d nests deeper than %d", ni.node.ID, maxPullDepth)
	}
	sc, err := c.newContext(ni, -1, false)
	if err != nil {
		return nil, err
	}
	if _, err := ni.spec.Step(sc); err != nil {
		return nil, c.bind(ni.node.ID, err)
	}
	NodeStepsTotal.WithLabelValues(ni.node.Kind).Inc()
	if sc.err != nil {
		return nil, c.bind(ni.node.ID, sc.err)
	}
	return sc.outputs, nil
}

// bind attaches chain, owner and node to err, wrapping foreign errors as
// STEP_FAILED. The innermost node wins: an error already bound to a node
// keeps it.
func (c *chain) bind(nodeID int, err error) error {
	var re *RuntimeError
	if !errors.As(err, &re) {
		re = &RuntimeError{Code: ErrCodeStepFailed, Message: "step failed", NodeID: -1, Err: err}
	}
	if re.NodeID < 0 {
		re.NodeID = nodeID
	}
	if re.Chain == "" {
		re.Chain = c.id
	}
	if re.Owner == "" {
		re.Owner = c.inst.owner.Path()
	}
	return re
}
