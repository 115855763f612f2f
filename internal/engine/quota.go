package engine

import (
	"errors"
	"fmt"
)

// StepBudget counts node steps in one chain and enforces an optional limit.
//
// The engine performs no cycle detection: a control loop that never exits is
// an authoring error. A budget gives hosts an opt-in bound on such loops.
// A limit of 0 means unlimited.
type StepBudget struct {
	limit   int
	current int
}

// NewStepBudget creates a budget with the given limit.
func NewStepBudget(limit int) *StepBudget {
	return &StepBudget{limit: limit}
}

// Check counts one step and fails once the limit is passed.
func (b *StepBudget) Check(chain string) error {
	b.current++
	if b.limit > 0 && b.current > b.limit {
		return &StepsExceededError{Chain: chain, Steps: b.current, Limit: b.limit}
	}
	return nil
}

// Current returns the number of steps counted so far.
func (b *StepBudget) Current() int {
	return b.current
}

// Limit returns the configured limit.
func (b *StepBudget) Limit() int {
	return b.limit
}

// StepsExceededError is returned when a chain exceeds its step budget.
type StepsExceededError struct {
	Chain string
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("chain %s exceeded step budget: %d steps > %d limit", e.Chain, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
