package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func TestDispatchTransitions(t *testing.T) {
	assert.True(t, CanDispatch(DispatchIdle, DispatchCandidate))
	assert.True(t, CanDispatch(DispatchCandidate, DispatchExecuting))
	assert.True(t, CanDispatch(DispatchExecuting, DispatchIdle))
	assert.True(t, CanDispatch(DispatchCandidate, DispatchIdle))
	assert.True(t, CanDispatch(DispatchExecuting, DispatchCandidate))

	assert.False(t, CanDispatch(DispatchIdle, DispatchExecuting))
	assert.False(t, CanDispatch(DispatchIdle, DispatchIdle))

	assert.Error(t, Dispatch(DispatchIdle, DispatchExecuting))
	assert.NoError(t, Dispatch(DispatchIdle, DispatchCandidate))
}

func TestExecutionTransitions(t *testing.T) {
	assert.True(t, CanComplete(types.ExecutionRunning, types.ExecutionSuccess))
	assert.True(t, CanComplete(types.ExecutionRunning, types.ExecutionFailed))

	assert.False(t, CanComplete(types.ExecutionSuccess, types.ExecutionFailed))
	assert.False(t, CanComplete(types.ExecutionFailed, types.ExecutionSuccess))
	assert.False(t, CanComplete(types.ExecutionSuccess, types.ExecutionRunning))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(types.ExecutionRunning))
	assert.True(t, IsTerminal(types.ExecutionSuccess))
	assert.True(t, IsTerminal(types.ExecutionFailed))
}
