package wsapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RequestEnvelope wraps a request payload with its correlation id, per
// spec.md §4.7's request_id contract. Ping/Handshake frames carry their
// payload directly, without this envelope.
type RequestEnvelope struct {
	RequestID int64
	Body      []byte
}

// ResponseEnvelope echoes the request's RequestID alongside the
// handler's response payload.
type ResponseEnvelope struct {
	RequestID int64
	Body      []byte
}

// BlockNotification, EpochNotification, and MempoolNotification are the
// notification payloads fanned out to subscribed clients.
type BlockNotification struct{ Height uint64 }
type EpochNotification struct{ EpochNumber uint64 }
type MempoolNotification struct{ TxID string }

// Server dispatches inbound frames against a Registry, enforces the
// connection state machine, and fans out notifications to subscribers.
type Server struct {
	registry      *Registry
	subscriptions *SubscriptionTable
	serverVersion string
	chainInfo     ChainInfo
	logger        ulogger.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewServer builds a Server. registry must already be fully populated;
// registrations are read-only after construction.
func NewServer(registry *Registry, serverVersion string, chainInfo ChainInfo, logger ulogger.Logger) *Server {
	return &Server{
		registry:      registry,
		subscriptions: NewSubscriptionTable(),
		serverVersion: serverVersion,
		chainInfo:     chainInfo,
		logger:        logger.New("wsapi"),
		connections:   make(map[string]*Connection),
	}
}

// HandleWebSocket is the echo handler for GET /api/v1/ws.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := NewConnection(ws)

	s.mu.Lock()
	s.connections[conn.ID] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.connections, conn.ID)
		s.mu.Unlock()
		s.subscriptions.UnsubscribeAll(conn.ID)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		if len(data) > conn.maxPayload {
			_ = conn.Close(CloseProtocolError, "payload too large")
			return nil
		}

		if terminate := s.dispatch(c.Request().Context(), conn, data); terminate {
			return nil
		}
	}
}

// dispatch processes one inbound frame, returning true if the
// connection should be closed.
func (s *Server) dispatch(ctx context.Context, conn *Connection, data []byte) bool {
	ctx, _, deferFn := tracing.StartTracing(ctx, "wsapi.Server.dispatch")
	defer deferFn()

	opcode, payload, err := DecodeFrame(data)
	if err != nil {
		s.sendError(conn, 0, CategoryProtocol, CodeMalformedMessage, err.Error())
		return false
	}

	if conn.State() == ConnConnected && opcode != OpPing && opcode != OpHandshake {
		s.sendError(conn, 0, CategoryProtocol, CodeHandshakeRequired, "handshake required before any other opcode")
		_ = conn.Close(CloseProtocolError, "handshake required")
		return true
	}

	switch opcode {
	case OpPing:
		frame, _ := EncodeFrame(OpPong, nil)
		_ = conn.Send(frame)
		return false

	case OpHandshake:
		return s.handleHandshake(conn, payload)

	default:
		return s.handleRequest(ctx, conn, opcode, payload)
	}
}

func (s *Server) handleHandshake(conn *Connection, payload []byte) bool {
	var req HandshakeRequest
	if err := DecodePayload(payload, &req); err != nil {
		s.sendError(conn, 0, CategoryProtocol, CodeMalformedMessage, err.Error())
		return false
	}

	resp, err := performHandshake(conn, req, s.serverVersion, s.chainInfo)
	if err != nil {
		code := classify(err)
		s.sendError(conn, 0, CategoryProtocol, code, err.Error())
		if terminate, closeCode := shouldTerminate(code); terminate {
			_ = conn.Close(closeCode, string(code))
			return true
		}
		return false
	}

	frame, _ := EncodeFrame(OpHandshakeAck, resp)
	_ = conn.Send(frame)
	return false
}

func (s *Server) handleRequest(ctx context.Context, conn *Connection, opcode Opcode, rawPayload []byte) bool {
	var env RequestEnvelope
	if err := DecodePayload(rawPayload, &env); err != nil || env.RequestID < 0 {
		s.sendError(conn, 0, CategoryProtocol, CodeInvalidRequestID, "missing or invalid request_id")
		return false
	}

	route, ok := s.registry.Lookup(opcode)
	if !ok {
		s.sendError(conn, env.RequestID, CategoryProtocol, CodeUnknownOpcode, "unknown opcode")
		return false
	}

	if route.RequiresHandshake && conn.State() != ConnHandshaked {
		s.sendError(conn, env.RequestID, CategoryProtocol, CodeHandshakeRequired, "handshake required for this opcode")
		return false
	}

	if err := conn.BeginRequest(); err != nil {
		s.sendError(conn, env.RequestID, CategoryValidation, CodeTooManyPendingRequests, err.Error())
		return false
	}
	defer conn.EndRequest()

	result, err := route.Handler(ctx, conn, env.Body)
	if err != nil {
		s.sendError(conn, env.RequestID, CategoryInternal, CodeInternalError, err.Error())
		return false
	}

	bodyFrame, err := EncodeFrame(0, result)
	if err != nil {
		s.sendError(conn, env.RequestID, CategoryInternal, CodeInternalError, "encode response")
		return false
	}

	respEnv := ResponseEnvelope{RequestID: env.RequestID, Body: bodyFrame[2:]}
	frame, err := EncodeFrame(route.ResponseOpcode, respEnv)
	if err != nil {
		s.sendError(conn, env.RequestID, CategoryInternal, CodeInternalError, "encode response envelope")
		return false
	}

	if err := conn.Send(frame); err != nil {
		s.logger.Debugf("send response to %s failed: %v", conn.ID, err)
	}
	return false
}

func (s *Server) sendError(conn *Connection, requestID int64, category ErrorCategory, code ErrorCode, message string) {
	wireErr := WireError{RequestID: requestID, Category: category, Code: code, Message: message}
	frame, err := EncodeFrame(OpErrorFrame, wireErr)
	if err != nil {
		return
	}
	_ = conn.Send(frame)
}

func classify(err error) ErrorCode {
	opnetErr, ok := err.(*errors.Error)
	if !ok {
		return CodeInternalError
	}
	switch opnetErr.Code {
	case errors.ERR_HANDSHAKE_ALREADY_COMPLETED:
		return CodeHandshakeAlreadyCompleted
	case errors.ERR_UNSUPPORTED_PROTOCOL_VERSION:
		return CodeUnsupportedProtocolVersion
	case errors.ERR_VALIDATION_ERROR:
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// Notify fans out a notification frame to every client subscribed to
// topic, skipping any client whose backpressure buffer is saturated.
func (s *Server) Notify(topic Topic, opcode Opcode, payload interface{}) {
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		s.logger.Warnf("encode notification for %s: %v", topic, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, clientID := range s.subscriptions.Subscribers(topic) {
		conn, ok := s.connections[clientID]
		if !ok || conn.Saturated() {
			continue
		}
		if err := conn.Send(frame); err != nil {
			s.logger.Debugf("notify %s failed for %s: %v", topic, clientID, err)
		}
	}
}
