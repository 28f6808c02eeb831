package wsapi

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opnet-chain/opnetd/errors"
)

func deadlineNow() time.Time { return time.Now().Add(5 * time.Second) }

// DefaultMaxPayloadLength bounds one frame's payload, per spec.md §6.
const DefaultMaxPayloadLength = 1 << 20

// DefaultMaxPendingRequests bounds in-flight requests per client before
// TOO_MANY_PENDING_REQUESTS is returned.
const DefaultMaxPendingRequests = 64

// Connection wraps one client's WebSocket, its post-handshake state, and
// its backpressure/rate-limit bookkeeping, per spec.md §4.7.
type Connection struct {
	ID     string
	ws     *websocket.Conn
	writeMu sync.Mutex

	state            ConnState
	stateMu          sync.Mutex
	pendingRequests  int32
	maxPending       int32
	maxPayload       int
	maxBackpressure  int
	outstandingBytes int64

	handshaken bool
}

// NewConnection wraps ws with a fresh client id and default limits.
func NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:              uuid.NewString(),
		ws:              ws,
		state:           ConnConnected,
		maxPending:      DefaultMaxPendingRequests,
		maxPayload:      DefaultMaxPayloadLength,
		maxBackpressure: 2 * DefaultMaxPayloadLength,
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Connection) setState(s ConnState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

// BeginRequest increments the pending-request counter, failing with
// TOO_MANY_PENDING_REQUESTS if the client's bound is exceeded.
func (c *Connection) BeginRequest() error {
	if atomic.AddInt32(&c.pendingRequests, 1) > c.maxPending {
		atomic.AddInt32(&c.pendingRequests, -1)
		return errors.NewTooManyPendingRequestsError("client %s exceeded pending request limit %d", c.ID, c.maxPending)
	}
	return nil
}

// EndRequest decrements the pending-request counter.
func (c *Connection) EndRequest() {
	atomic.AddInt32(&c.pendingRequests, -1)
}

// Saturated reports whether outbound backpressure has reached the
// configured bound; saturated clients are skipped for notifications
// rather than blocked on.
func (c *Connection) Saturated() bool {
	return atomic.LoadInt64(&c.outstandingBytes) >= int64(c.maxBackpressure)
}

// Send writes a binary frame, tracking backpressure around the write.
func (c *Connection) Send(frame []byte) error {
	atomic.AddInt64(&c.outstandingBytes, int64(len(frame)))
	defer atomic.AddInt64(&c.outstandingBytes, -int64(len(frame)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.NewNetworkError("write to client %s", c.ID, err)
	}
	return nil
}

// Close closes the underlying WebSocket with the given close code.
func (c *Connection) Close(code CloseCode, reason string) error {
	c.setState(ConnClosed)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadlineNow())
	return c.ws.Close()
}
