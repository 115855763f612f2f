package engine

import (
	"context"
	"slices"

	"github.com/roach88/vscript/internal/ir"
)

// Owner is the host object a running instance is attached to.
type Owner interface {
	// Path identifies the owner, e.g. "/root/Main/Player".
	Path() string

	// Class is the owner's host class name.
	Class() string

	// EmitSignal dispatches a named signal with positional arguments. The
	// host may trigger further chains on the same instance from here.
	EmitSignal(name string, args []ir.Value) error

	// CallMethod invokes a host method on the owner.
	CallMethod(method string, args []ir.Value) (ir.Value, error)
}

// MethodCaller is implemented by host objects that can be the target of a
// call_method node. Owner satisfies it.
type MethodCaller interface {
	CallMethod(method string, args []ir.Value) (ir.Value, error)
}

// ClassDB answers questions about host classes. Implementations must be safe
// for concurrent use.
type ClassDB interface {
	ClassExists(class string) bool
	IsParentClass(class, parent string) bool
	HasMethod(class, method string) bool
}

// ClassInfo describes one class of a StaticClassDB.
type ClassInfo struct {
	Parent  string
	Methods []string
}

// StaticClassDB is a ClassDB backed by a fixed map.
type StaticClassDB map[string]ClassInfo

// ClassExists reports whether class is known.
func (db StaticClassDB) ClassExists(class string) bool {
	_, ok := db[class]
	return ok
}

// IsParentClass reports whether parent is class or one of its ancestors.
func (db StaticClassDB) IsParentClass(class, parent string) bool {
	for seen := 0; class != "" && seen <= len(db); seen++ {
		if class == parent {
			return true
		}
		class = db[class].Parent
	}
	return false
}

// HasMethod reports whether class or one of its ancestors declares method.
func (db StaticClassDB) HasMethod(class, method string) bool {
	for seen := 0; class != "" && seen <= len(db); seen++ {
		info, ok := db[class]
		if !ok {
			return false
		}
		if slices.Contains(info.Methods, method) {
			return true
		}
		class = info.Parent
	}
	return false
}

// Debugger is the breakpoint collaborator consulted before each step.
type Debugger interface {
	// ShouldBreak reports whether the chain must suspend before node steps.
	// flagged is the node's own breakpoint flag.
	ShouldBreak(owner string, nodeID int, flagged bool) bool

	// Suspend blocks until the debugger resumes or single-steps, and returns
	// an error if the debugger cancels the chain or ctx is done.
	Suspend(ctx context.Context, owner string, nodeID int) error
}

// StepEvent describes one executed step, for observers.
type StepEvent struct {
	Chain   string
	Seq     int64
	Owner   string
	NodeID  int
	Kind    string
	Exit    Exit
	Resumed bool
	Outputs []ir.Value
}

// ChainEvent describes a finished chain, for observers.
type ChainEvent struct {
	Chain string
	Seq   int64
	Owner string
	Entry string
	Steps int
	Err   error
}

// Observer receives execution events synchronously.
type Observer interface {
	OnStep(StepEvent)
	OnChainEnd(ChainEvent)
}
