package wsapi

// ErrorCategory is the top-level error taxonomy from spec.md §4.7.
type ErrorCategory string

const (
	CategoryProtocol   ErrorCategory = "ProtocolError"
	CategoryValidation ErrorCategory = "ValidationError"
	CategoryInternal   ErrorCategory = "InternalError"
)

// ErrorCode is a concrete wire error code within a category.
type ErrorCode string

const (
	CodeUnknownOpcode               ErrorCode = "UNKNOWN_OPCODE"
	CodeMalformedMessage            ErrorCode = "MALFORMED_MESSAGE"
	CodeHandshakeRequired           ErrorCode = "HANDSHAKE_REQUIRED"
	CodeHandshakeAlreadyCompleted   ErrorCode = "HANDSHAKE_ALREADY_COMPLETED"
	CodeUnsupportedProtocolVersion  ErrorCode = "UNSUPPORTED_PROTOCOL_VERSION"
	CodeInvalidRequestID            ErrorCode = "INVALID_REQUEST_ID"
	CodeTooManyPendingRequests      ErrorCode = "TOO_MANY_PENDING_REQUESTS"
	CodeInvalidParams               ErrorCode = "INVALID_PARAMS"
	CodeNotImplemented              ErrorCode = "NOT_IMPLEMENTED"
	CodeInternalError               ErrorCode = "INTERNAL_ERROR"
)

// WireError is the payload of an OpErrorFrame response.
type WireError struct {
	RequestID int64
	Category  ErrorCategory
	Code      ErrorCode
	Message   string
}

// CloseCode is a standard WebSocket close code.
type CloseCode int

const (
	CloseProtocolError CloseCode = 1002
	ClosePolicy        CloseCode = 1008
)

// shouldTerminate decides whether a given wire error code closes the
// connection after the error frame is sent, per spec.md §4.7.
func shouldTerminate(code ErrorCode) (bool, CloseCode) {
	switch code {
	case CodeHandshakeRequired, CodeUnsupportedProtocolVersion:
		return true, CloseProtocolError
	case CodeHandshakeAlreadyCompleted, CodeTooManyPendingRequests, CodeInvalidParams:
		return false, 0
	default:
		return false, 0
	}
}
