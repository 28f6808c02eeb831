package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle_HappyPath(t *testing.T) {
	l := NewLifecycle("p1")
	require.Equal(t, StateDiscovered, l.State())

	require.NoError(t, l.Transition(StateValidated))
	require.NoError(t, l.Transition(StateLoading))
	require.NoError(t, l.Transition(StateLoaded))
	require.NoError(t, l.Transition(StateEnabled))
	require.True(t, l.IsEnabled())

	require.NoError(t, l.Transition(StateDisabled))
	require.False(t, l.IsEnabled())
	require.NoError(t, l.Transition(StateEnabled))
}

func TestLifecycle_RejectsInvalidTransition(t *testing.T) {
	l := NewLifecycle("p1")
	err := l.Transition(StateEnabled)
	require.Error(t, err)
	require.Equal(t, StateDiscovered, l.State())
}

func TestLifecycle_CrashedRecoversToEnabled(t *testing.T) {
	l := NewLifecycle("p1")
	require.NoError(t, l.Transition(StateValidated))
	require.NoError(t, l.Transition(StateLoading))
	require.NoError(t, l.Transition(StateLoaded))
	require.NoError(t, l.Transition(StateEnabled))
	require.NoError(t, l.Transition(StateCrashed))
	require.False(t, l.IsEnabled())

	require.NoError(t, l.Transition(StateEnabled))
	require.True(t, l.IsEnabled())
}
