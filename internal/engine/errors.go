package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure detected while a chain runs. The chain that hit
// it is abandoned at that point; side effects already applied stay applied.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Owner is the path of the running owner.
	Owner string

	// NodeID is the node being evaluated, or -1.
	NodeID int

	// Chain identifies the execution chain.
	Chain string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStepFailed indicates a node's step returned an error.
	ErrCodeStepFailed RuntimeErrorCode = "STEP_FAILED"

	// ErrCodeSignalUndefined indicates an emit for a signal the program does not declare.
	ErrCodeSignalUndefined RuntimeErrorCode = "SIGNAL_UNDEFINED"

	// ErrCodeTooManyArguments indicates a dispatch beyond MaxSignalArgs.
	ErrCodeTooManyArguments RuntimeErrorCode = "TOO_MANY_ARGUMENTS"

	// ErrCodeInvalidTarget indicates a call target that is not a callable object.
	ErrCodeInvalidTarget RuntimeErrorCode = "INVALID_TARGET"

	// ErrCodeTypeMismatch indicates a value that cannot flow into a pin's declared type.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeVariableUndefined indicates access to a variable the program does not declare.
	ErrCodeVariableUndefined RuntimeErrorCode = "VARIABLE_UNDEFINED"

	// ErrCodeDataNotReady indicates a read of a stepped node's output before it ran in the chain.
	ErrCodeDataNotReady RuntimeErrorCode = "DATA_NOT_READY"

	// ErrCodeFunctionNotFound indicates a call to an undeclared script or builtin function.
	ErrCodeFunctionNotFound RuntimeErrorCode = "FUNCTION_NOT_FOUND"

	// ErrCodeDepthExceeded indicates too many nested chains on one instance.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeStepsExceeded indicates a chain ran past its step budget.
	ErrCodeStepsExceeded RuntimeErrorCode = "STEPS_EXCEEDED"

	// ErrCodeCancelled indicates the chain was cancelled by its context or a debugger.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"

	// ErrCodeUnknownKind indicates a node kind with no registered behavior.
	ErrCodeUnknownKind RuntimeErrorCode = "UNKNOWN_KIND"

	// ErrCodeNoEntry indicates a trigger that no event node handles.
	ErrCodeNoEntry RuntimeErrorCode = "NO_ENTRY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.NodeID >= 0 {
		msg += fmt.Sprintf(" (node=%d", e.NodeID)
		if e.Chain != "" {
			msg += ", chain=" + e.Chain
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError reports whether err wraps a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStepsError reports whether err is a step budget failure, either a
// RuntimeError with ErrCodeStepsExceeded or a bare StepsExceededError.
func IsStepsError(err error) bool {
	if IsRuntimeError(err, ErrCodeStepsExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// newError builds a RuntimeError not yet bound to a node or chain.
func newError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), NodeID: -1}
}
