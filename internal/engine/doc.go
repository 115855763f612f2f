// Package engine runs visual-script programs by walking their graphs.
//
// An Instance attaches a program to one owner (a host object). Triggers
// start execution chains at event nodes; a chain steps one node at a time,
// follows the control output each step selects, and pulls data inputs on
// demand from upstream nodes.
//
// ARCHITECTURE:
//
// Execution chain:
// 1. Gather the node's data inputs. Pure nodes (no control pins) upstream
// are evaluated on every pull; stepped nodes upstream are read from the
// chain's record of their last step.
// 2. If a Debugger is attached and wants to break here, block in Suspend.
// 3. Step the node. The returned Exit selects a control output, or Stop.
// 4. Continue at the first target of that output. Further targets, and
// nodes that asked to be resumed (loops, sequences), wait on the chain's
// pending stack and run when the current path ends.
//
// Behaviors:
// Node kinds are looked up in a registry of KindSpec values. Each spec
// derives the pin layout of a new node, implements its step, and may
// contribute build-time validation and pin type narrowing.
//
// CRITICAL PATTERNS:
//
// Stack-scoped chains:
// Every chain owns its outputs record, node memory and pending stack. A
// signal dispatched mid-chain may re-enter the same instance; the nested
// chain never touches the outer chain's state. Nesting is bounded by
// WithMaxDepth.
//
// Snapshots:
// A chain runs against the program snapshot it started with. Edits made
// while it runs take effect for the next chain.
//
// No cycle detection:
// The engine does not detect control loops. WithMaxSteps opts into a step
// budget per chain.
package engine
