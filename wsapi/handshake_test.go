package wsapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChainInfo struct {
	height  uint64
	chainID string
}

func (f fakeChainInfo) ChainTipHeight() uint64 { return f.height }
func (f fakeChainInfo) ChainID() string        { return f.chainID }

func newTestConnection() *Connection {
	return &Connection{
		ID:              "conn-1",
		state:           ConnConnected,
		maxPending:      DefaultMaxPendingRequests,
		maxPayload:      DefaultMaxPayloadLength,
		maxBackpressure: 2 * DefaultMaxPayloadLength,
	}
}

func TestPerformHandshake_Success(t *testing.T) {
	conn := newTestConnection()
	info := fakeChainInfo{height: 42, chainID: "opnet-main"}

	resp, err := performHandshake(conn, HandshakeRequest{ProtocolVersion: 1, ClientName: "explorer"}, "1.0.0", info)
	require.NoError(t, err)
	require.Equal(t, int32(1), resp.ProtocolVersion)
	require.Equal(t, uint64(42), resp.ChainHeight)
	require.Equal(t, "opnet-main", resp.ChainID)
	require.Equal(t, ConnHandshaked, conn.State())
}

func TestPerformHandshake_RejectsUnsupportedVersion(t *testing.T) {
	conn := newTestConnection()
	_, err := performHandshake(conn, HandshakeRequest{ProtocolVersion: 99, ClientName: "explorer"}, "1.0.0", fakeChainInfo{})
	require.Error(t, err)
	require.Equal(t, ConnConnected, conn.State())
}

func TestPerformHandshake_RejectsEmptyClientName(t *testing.T) {
	conn := newTestConnection()
	_, err := performHandshake(conn, HandshakeRequest{ProtocolVersion: 1, ClientName: ""}, "1.0.0", fakeChainInfo{})
	require.Error(t, err)
}

func TestPerformHandshake_RejectsDoubleHandshake(t *testing.T) {
	conn := newTestConnection()
	info := fakeChainInfo{height: 1, chainID: "opnet-main"}

	_, err := performHandshake(conn, HandshakeRequest{ProtocolVersion: 1, ClientName: "explorer"}, "1.0.0", info)
	require.NoError(t, err)

	_, err = performHandshake(conn, HandshakeRequest{ProtocolVersion: 1, ClientName: "explorer"}, "1.0.0", info)
	require.Error(t, err)
}
