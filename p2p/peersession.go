package p2p

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/opnet-chain/opnetd/errors"
)

// SessionState is a peer session's lifecycle position, per spec.md §4.5:
// Connect → identify → blacklist gate → authentication handshake, after
// which witnesses/mempool/discovery exchange is permitted.
type SessionState int

const (
	SessionConnected SessionState = iota
	SessionIdentified
	SessionAuthenticated
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "CONNECTED"
	case SessionIdentified:
		return "IDENTIFIED"
	case SessionAuthenticated:
		return "AUTHENTICATED"
	case SessionDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// PeerSession tracks one remote peer's connection lifecycle and
// light-client status (light peers are not sent witness requests).
type PeerSession struct {
	mu sync.Mutex

	ID            peer.ID
	RemoteAddr    string
	AgentVersion  string
	ConnectedAt   time.Time
	state         SessionState
	light         bool
	hasAuthed     bool
}

// NewPeerSession starts a session in the CONNECTED state.
func NewPeerSession(id peer.ID, remoteAddr string) *PeerSession {
	return &PeerSession{ID: id, RemoteAddr: remoteAddr, ConnectedAt: time.Now(), state: SessionConnected}
}

// State returns the session's current lifecycle state.
func (p *PeerSession) State() SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MarkIdentified records the agent/version exchange's result and
// advances CONNECTED → IDENTIFIED.
func (p *PeerSession) MarkIdentified(agentVersion string, light bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != SessionConnected {
		return errors.NewProtocolError("identify received out of order in state %s", p.state)
	}
	p.AgentVersion = agentVersion
	p.light = light
	p.state = SessionIdentified
	return nil
}

// MarkAuthenticated completes the application-level handshake,
// advancing IDENTIFIED → AUTHENTICATED. Only after this may the peer
// exchange witnesses, mempool transactions, and peer discovery.
func (p *PeerSession) MarkAuthenticated() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != SessionIdentified {
		return errors.NewProtocolError("authentication attempted out of order in state %s", p.state)
	}
	p.state = SessionAuthenticated
	p.hasAuthed = true
	return nil
}

// HasAuthenticated reports whether the authentication handshake has
// completed for this session.
func (p *PeerSession) HasAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasAuthed
}

// IsLight reports whether the peer identified itself as a light client;
// light peers are skipped for witness-sync requests (spec.md §4.6).
func (p *PeerSession) IsLight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.light
}

// Disconnect marks the session terminated for reason. Permanent reasons
// (bad checksum, bad signature, bad behavior, invalid chain) blacklist
// both the peer id and the remote host address; the caller is
// responsible for invoking Blacklist.Add with the right Reason.
func (p *PeerSession) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = SessionDisconnected
}
