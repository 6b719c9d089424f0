package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_HappyPath(t *testing.T) {
	tracker := NewStateMachine().NewTracker()

	for _, next := range []State{StateIdentified, StateRendering, StateConverting, StateNotifying, StateLogged, StateDone} {
		require.NoError(t, tracker.Advance(next))
	}

	assert.Equal(t, StateDone, tracker.Current())
	assert.Len(t, tracker.History(), 7)
}

func TestStateMachine_FailureBranches(t *testing.T) {
	sm := NewStateMachine()

	assert.True(t, sm.CanTransition(StateRendering, StateLogged))
	assert.True(t, sm.CanTransition(StateValidating, StateDone))
	assert.False(t, sm.CanTransition(StateValidating, StateLogged))
	assert.False(t, sm.CanTransition(StateDone, StateValidating))
	assert.Empty(t, sm.GetAllowedTransitions(StateDone))
	assert.Empty(t, sm.GetAllowedTransitions(State("unknown")))
}

func TestTracker_RejectsSkippingIdentification(t *testing.T) {
	tracker := NewStateMachine().NewTracker()

	err := tracker.Advance(StateRendering)
	require.Error(t, err)
	assert.Equal(t, StateValidating, tracker.Current())
}
