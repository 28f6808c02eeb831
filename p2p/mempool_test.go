package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKnownMempoolIDs_DeduplicatesUntilCleared(t *testing.T) {
	k := NewKnownMempoolIDs(30 * time.Millisecond)
	defer k.Close()

	require.False(t, k.SeenBefore("tx1"))
	require.True(t, k.SeenBefore("tx1"))

	time.Sleep(60 * time.Millisecond)
	require.False(t, k.SeenBefore("tx1"))
}
