package wsapi

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnection_BeginRequestEnforcesLimit(t *testing.T) {
	conn := &Connection{ID: "c1", state: ConnConnected, maxPending: 2}

	require.NoError(t, conn.BeginRequest())
	require.NoError(t, conn.BeginRequest())
	require.Error(t, conn.BeginRequest())

	conn.EndRequest()
	require.NoError(t, conn.BeginRequest())
}

func TestConnection_Saturated(t *testing.T) {
	conn := &Connection{ID: "c1", maxBackpressure: 100}
	require.False(t, conn.Saturated())

	atomic.StoreInt64(&conn.outstandingBytes, 150)
	require.True(t, conn.Saturated())
}
