package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlacklist_PermanentReasonBlacklistsImmediately(t *testing.T) {
	b := NewBlacklist()
	require.True(t, b.Add("peer-1", ReasonBadSignature))
	require.True(t, b.IsBlacklisted("peer-1"))
}

func TestBlacklist_TransientReasonEscalatesAfterThreeAttempts(t *testing.T) {
	b := NewBlacklist()

	require.False(t, b.Add("peer-2", ReasonReconnect))
	require.False(t, b.Add("peer-2", ReasonReconnect))
	require.True(t, b.Add("peer-2", ReasonReconnect))
	require.True(t, b.IsBlacklisted("peer-2"))
}

func TestBlacklist_TransientAttemptsResetOutsideWindow(t *testing.T) {
	b := NewBlacklist()
	b.cache.Set("peer-3", &entry{attempts: 2, windowAt: time.Now().Add(-2 * PurgeWindow)}, PurgeWindow)

	require.False(t, b.Add("peer-3", ReasonReconnect))
}

func TestBlacklist_AtCapacity(t *testing.T) {
	b := NewBlacklist()
	b.capacity = 2
	b.Add("a", ReasonBadBehavior)
	b.Add("b", ReasonBadBehavior)
	require.False(t, b.AtCapacity())
	b.Add("c", ReasonBadBehavior)
	require.True(t, b.AtCapacity())
}
