package p2p

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/ulogger"
)

const (
	// DefaultMaxMessageSize is the per-message size cap (spec.md §4.5).
	DefaultMaxMessageSize = 6 * 1024 * 1024
	// DefaultOutboundQueueBound is the bounded outbound FIFO queue depth.
	DefaultOutboundQueueBound = 100
	// DefaultIdleTimeout closes a stream after this long with no writes.
	DefaultIdleTimeout = 30 * time.Second
	// ackByte is the single-byte inbound ACK signal, never forwarded to
	// the application layer.
	ackByte = 0x01
)

func streamKey(p peer.ID, proto protocol.ID) string {
	return p.String() + "::" + string(proto)
}

// managedStream owns one reusable bidirectional stream in one direction
// for one (peer, protocol) pair, with a bounded outbound FIFO queue.
type managedStream struct {
	stream  network.Stream
	outbox  chan []byte
	closeCh chan struct{}
	once    sync.Once
}

func (m *managedStream) close() {
	m.once.Do(func() {
		close(m.closeCh)
		_ = m.stream.Close()
	})
}

// InboundHandler processes one non-ACK inbound message. A non-nil reply
// is framed and written back on the same stream after the transport
// ACK. Returning an error drops the stream (mirrors "oversized inbound
// closes the stream").
type InboundHandler func(from peer.ID, proto protocol.ID, data []byte) (reply []byte, err error)

// StreamManager implements spec.md §4.5's stream manager: at most one
// reusable outbound and one reusable inbound stream per (peer, protocol),
// length-prefixed framing, a per-message size cap, an idle-timeout close,
// and transparent per-message ACK (a bare 0x01 byte).
type StreamManager struct {
	host host.Host

	mu       sync.Mutex
	outbound map[string]*managedStream

	maxMessageSize int
	queueBound     int
	idleTimeout    time.Duration

	handler   InboundHandler
	blacklist *Blacklist
	logger    ulogger.Logger
}

// NewStreamManager wires a StreamManager onto host, registering proto as
// its stream handler. blacklist records peers whose inbound traffic
// violates the protocol (oversized frames, handler-rejected messages),
// per spec.md §4.5/§4.6.
func NewStreamManager(h host.Host, proto protocol.ID, handler InboundHandler, blacklist *Blacklist, logger ulogger.Logger) *StreamManager {
	sm := &StreamManager{
		host:           h,
		outbound:       make(map[string]*managedStream),
		maxMessageSize: DefaultMaxMessageSize,
		queueBound:     DefaultOutboundQueueBound,
		idleTimeout:    DefaultIdleTimeout,
		handler:        handler,
		blacklist:      blacklist,
		logger:         logger.New("p2p-stream"),
	}

	h.SetStreamHandler(proto, sm.handleInbound)
	return sm
}

// SetHandler installs (or replaces) the inbound message handler. Used
// when the handler's construction depends on the StreamManager itself
// (e.g. Gossip needs Node.Streams()), breaking the construction cycle.
func (sm *StreamManager) SetHandler(handler InboundHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handler = handler
}

// SendMessage reuses the outbound stream for (peerID, proto) if one
// exists, dialing a fresh one otherwise. On a send failure the stream is
// dropped and redialed exactly once before the error is surfaced.
func (sm *StreamManager) SendMessage(ctx context.Context, peerID peer.ID, proto protocol.ID, msg []byte) error {
	if len(msg) > sm.maxMessageSize {
		return errors.NewMalformedMessageError("outbound message %d bytes exceeds cap %d", len(msg), sm.maxMessageSize)
	}

	if err := sm.trySend(ctx, peerID, proto, msg); err != nil {
		sm.drop(peerID, proto)
		return sm.trySend(ctx, peerID, proto, msg)
	}
	return nil
}

func (sm *StreamManager) trySend(ctx context.Context, peerID peer.ID, proto protocol.ID, msg []byte) error {
	ms, err := sm.getOrDial(ctx, peerID, proto)
	if err != nil {
		return err
	}

	select {
	case ms.outbox <- msg:
		return nil
	default:
		return errors.NewQueueFullError("outbound queue full for %s", streamKey(peerID, proto))
	}
}

// Request opens a dedicated stream (bypassing the reusable outbound
// stream, which is fire-and-forget) to perform a synchronous
// request/reply exchange: write msg, consume the transport ACK, then
// read and return the application-level reply frame the peer's
// InboundHandler produced.
func (sm *StreamManager) Request(ctx context.Context, peerID peer.ID, proto protocol.ID, msg []byte) ([]byte, error) {
	if len(msg) > sm.maxMessageSize {
		return nil, errors.NewMalformedMessageError("request message %d bytes exceeds cap %d", len(msg), sm.maxMessageSize)
	}

	st, err := sm.host.NewStream(ctx, peerID, proto)
	if err != nil {
		return nil, errors.NewNetworkError("dial request stream to %s/%s", peerID, proto, err)
	}
	defer st.Close()

	if err := writeFrame(st, msg); err != nil {
		return nil, errors.NewNetworkError("write request to %s", peerID, err)
	}

	ack, err := readFrame(st, sm.maxMessageSize)
	if err != nil {
		return nil, errors.NewNetworkError("read ack from %s", peerID, err)
	}
	if len(ack) != 1 || ack[0] != ackByte {
		return nil, errors.NewProtocolError("expected ack from %s, got %d bytes", peerID, len(ack))
	}

	reply, err := readFrame(st, sm.maxMessageSize)
	if err != nil {
		return nil, errors.NewNetworkError("read reply from %s", peerID, err)
	}
	return reply, nil
}

func (sm *StreamManager) getOrDial(ctx context.Context, peerID peer.ID, proto protocol.ID) (*managedStream, error) {
	key := streamKey(peerID, proto)

	sm.mu.Lock()
	if existing, ok := sm.outbound[key]; ok {
		sm.mu.Unlock()
		return existing, nil
	}
	sm.mu.Unlock()

	st, err := sm.host.NewStream(ctx, peerID, proto)
	if err != nil {
		return nil, errors.NewNetworkError("dial stream to %s/%s", peerID, proto, err)
	}

	ms := &managedStream{
		stream:  st,
		outbox:  make(chan []byte, sm.queueBound),
		closeCh: make(chan struct{}),
	}

	sm.mu.Lock()
	sm.outbound[key] = ms
	sm.mu.Unlock()

	go sm.writeLoop(key, ms)
	return ms, nil
}

func (sm *StreamManager) drop(peerID peer.ID, proto protocol.ID) {
	key := streamKey(peerID, proto)

	sm.mu.Lock()
	ms, ok := sm.outbound[key]
	if ok {
		delete(sm.outbound, key)
	}
	sm.mu.Unlock()

	if ok {
		ms.close()
	}
}

func (sm *StreamManager) writeLoop(key string, ms *managedStream) {
	idle := time.NewTimer(sm.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ms.closeCh:
			return
		case <-idle.C:
			sm.logger.Debugf("closing idle stream %s", key)
			ms.close()
			sm.mu.Lock()
			if sm.outbound[key] == ms {
				delete(sm.outbound, key)
			}
			sm.mu.Unlock()
			return
		case msg := <-ms.outbox:
			if err := writeFrame(ms.stream, msg); err != nil {
				sm.logger.Warnf("write failed on %s: %v", key, err)
				sm.mu.Lock()
				if sm.outbound[key] == ms {
					delete(sm.outbound, key)
				}
				sm.mu.Unlock()
				ms.close()
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(sm.idleTimeout)
		}
	}
}

func (sm *StreamManager) handleInbound(st network.Stream) {
	defer st.Close()

	proto := st.Protocol()
	from := st.Conn().RemotePeer()

	for {
		data, err := readFrame(st, sm.maxMessageSize)
		if err != nil {
			if err != io.EOF {
				sm.logger.Debugf("inbound stream from %s closed: %v", from, err)
				if isMalformedMessage(err) {
					sm.blacklistPeer(from, ReasonBadBehavior)
				}
			}
			return
		}

		if len(data) == 1 && data[0] == ackByte {
			continue
		}

		if err := writeFrame(st, []byte{ackByte}); err != nil {
			return
		}

		if sm.handler != nil {
			reply, err := sm.handler(from, proto, data)
			if err != nil {
				sm.logger.Warnf("inbound handler error from %s, closing stream: %v", from, err)
				sm.blacklistPeer(from, ReasonBadBehavior)
				return
			}
			if reply != nil {
				if err := writeFrame(st, reply); err != nil {
					return
				}
			}
		}
	}
}

func isMalformedMessage(err error) bool {
	opnetErr, ok := err.(*errors.Error)
	return ok && opnetErr.Code == errors.ERR_MALFORMED_MESSAGE
}

// blacklistPeer records a protocol violation against from. Reasons used
// here (ReasonBadBehavior) are permanent per Reason.permanent(), matching
// spec.md §4.5's "bad behavior blacklists immediately" rule.
func (sm *StreamManager) blacklistPeer(from peer.ID, reason Reason) {
	if sm.blacklist == nil {
		return
	}
	sm.blacklist.Add(from.String(), reason)
}

func writeFrame(w io.Writer, data []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(data)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(lenPrefix[:])
	if int(size) > maxSize {
		return nil, errors.NewMalformedMessageError("inbound frame %d bytes exceeds cap %d", size, maxSize)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
