package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepBudgetWithinLimit(t *testing.T) {
	b := NewStepBudget(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Check("c1"))
	}
	assert.Equal(t, 3, b.Current())
	assert.Equal(t, 3, b.Limit())

	err := b.Check("c1")
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))
	assert.True(t, IsStepsError(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "chain c1 exceeded step budget: 4 steps > 3 limit", err.Error())
}

func TestStepBudgetZeroIsUnlimited(t *testing.T) {
	b := NewStepBudget(0)
	for i := 0; i < 10000; i++ {
		require.NoError(t, b.Check("c"))
	}
}

func TestRuntimeErrorHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", &RuntimeError{Code: ErrCodeSignalUndefined, Message: "no signal", NodeID: 4, Chain: "c9"})
	assert.True(t, IsRuntimeError(err, ErrCodeSignalUndefined))
	assert.False(t, IsRuntimeError(err, ErrCodeNoEntry))
	assert.Contains(t, err.Error(), "SIGNAL_UNDEFINED: no signal (node=4, chain=c9)")
	assert.True(t, IsStepsError(newError(ErrCodeStepsExceeded, "x")))
	assert.False(t, IsStepsError(nil))
}
