package wsapi

import (
	"fmt"

	"github.com/opnet-chain/opnetd/errors"
)

// MinProtocolVersion and MaxProtocolVersion bound the client's
// acceptable protocol version; both are 1 today (spec.md §4.7).
const (
	MinProtocolVersion = 1
	MaxProtocolVersion = 1
)

const maxClientNameLength = 64

// HandshakeRequest is the OpHandshake payload.
type HandshakeRequest struct {
	ProtocolVersion int32
	ClientName      string
}

// HandshakeResponse is the OpHandshakeAck payload.
type HandshakeResponse struct {
	ProtocolVersion int32
	SessionID       string
	ServerVersion   string
	ChainHeight     uint64
	ChainID         string
}

// ChainInfo supplies the current height/chain id for the handshake
// response; satisfied by cmd/opnetd's chainTipCache.
type ChainInfo interface {
	ChainTipHeight() uint64
	ChainID() string
}

// performHandshake validates req against spec.md §4.7's handshake
// contract and, on success, marks conn HANDSHAKED.
func performHandshake(conn *Connection, req HandshakeRequest, serverVersion string, info ChainInfo) (*HandshakeResponse, error) {
	if conn.handshaken {
		return nil, errors.NewHandshakeAlreadyCompletedError("connection %s already handshaked", conn.ID)
	}
	if req.ProtocolVersion < MinProtocolVersion || req.ProtocolVersion > MaxProtocolVersion {
		return nil, errors.NewUnsupportedProtocolVersionError("protocol version %d not in [%d, %d]", req.ProtocolVersion, MinProtocolVersion, MaxProtocolVersion)
	}
	if len(req.ClientName) == 0 || len(req.ClientName) > maxClientNameLength {
		return nil, errors.NewValidationError("client name must be 1-%d characters", maxClientNameLength)
	}

	conn.handshaken = true
	conn.setState(ConnHandshaked)

	return &HandshakeResponse{
		ProtocolVersion: req.ProtocolVersion,
		SessionID:       fmt.Sprintf("%s-%s", conn.ID, req.ClientName),
		ServerVersion:   serverVersion,
		ChainHeight:     info.ChainTipHeight(),
		ChainID:         info.ChainID(),
	}, nil
}
