package errors

// Convenience constructors, one per ERR code that call sites construct
// directly. Mirrors the NewXxxError(msg, params...) convention used
// throughout the codebase instead of calling New(ERR_XXX, ...) inline.

func NewConfigurationError(message string, params ...interface{}) *Error {
	return New(ERR_CONFIGURATION_ERROR, message, params...)
}

func NewServiceError(message string, params ...interface{}) *Error {
	return New(ERR_SERVICE_ERROR, message, params...)
}

func NewServiceNotStartedError(message string, params ...interface{}) *Error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}

func NewServiceUnavailableError(message string, params ...interface{}) *Error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}

func NewStorageError(message string, params ...interface{}) *Error {
	return New(ERR_STORAGE_ERROR, message, params...)
}

func NewInvalidArgumentError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewBlockNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}

func NewHeaderNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_HEADER_NOT_FOUND, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_FOUND, message, params...)
}

func NewProcessingError(message string, params ...interface{}) *Error {
	return New(ERR_PROCESSING_ERROR, message, params...)
}

func NewStateInitializationError(message string, params ...interface{}) *Error {
	return New(ERR_STATE_INITIALIZATION_ERROR, message, params...)
}

func NewInvalidSignatureError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_SIGNATURE, message, params...)
}

func NewInvalidChecksumError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_CHECKSUM, message, params...)
}

func NewNotTrustedError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_TRUSTED, message, params...)
}

func NewSemverMismatchError(message string, params ...interface{}) *Error {
	return New(ERR_SEMVER_MISMATCH, message, params...)
}

func NewEpochMismatchError(message string, params ...interface{}) *Error {
	return New(ERR_EPOCH_MISMATCH, message, params...)
}

func NewDuplicateError(message string, params ...interface{}) *Error {
	return New(ERR_DUPLICATE, message, params...)
}

func NewThresholdExceededError(message string, params ...interface{}) *Error {
	return New(ERR_THRESHOLD_EXCEEDED, message, params...)
}

func NewTooManyPendingRequestsError(message string, params ...interface{}) *Error {
	return New(ERR_TOO_MANY_PENDING_REQUESTS, message, params...)
}

func NewProtocolError(message string, params ...interface{}) *Error {
	return New(ERR_PROTOCOL_ERROR, message, params...)
}

func NewMalformedMessageError(message string, params ...interface{}) *Error {
	return New(ERR_MALFORMED_MESSAGE, message, params...)
}

func NewNotImplementedError(message string, params ...interface{}) *Error {
	return New(ERR_NOT_IMPLEMENTED, message, params...)
}

func NewRPCError(message string, params ...interface{}) *Error {
	return New(ERR_RPC_ERROR, message, params...)
}

func NewNetworkError(message string, params ...interface{}) *Error {
	return New(ERR_NETWORK_ERROR, message, params...)
}

func NewQueueFullError(message string, params ...interface{}) *Error {
	return New(ERR_QUEUE_FULL, message, params...)
}

func NewBackpressureError(message string, params ...interface{}) *Error {
	return New(ERR_BACKPRESSURE, message, params...)
}

func NewHandshakeRequiredError(message string, params ...interface{}) *Error {
	return New(ERR_HANDSHAKE_REQUIRED, message, params...)
}

func NewHandshakeAlreadyCompletedError(message string, params ...interface{}) *Error {
	return New(ERR_HANDSHAKE_ALREADY_COMPLETED, message, params...)
}

func NewUnsupportedProtocolVersionError(message string, params ...interface{}) *Error {
	return New(ERR_UNSUPPORTED_PROTOCOL_VERSION, message, params...)
}

func NewInvalidRequestIDError(message string, params ...interface{}) *Error {
	return New(ERR_INVALID_REQUEST_ID, message, params...)
}

func NewUnknownOpcodeError(message string, params ...interface{}) *Error {
	return New(ERR_UNKNOWN_OPCODE, message, params...)
}

func NewValidationError(message string, params ...interface{}) *Error {
	return New(ERR_VALIDATION_ERROR, message, params...)
}

func NewCircularDependencyError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_CIRCULAR_DEPENDENCY, message, params...)
}

func NewMissingDependencyError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_MISSING_DEPENDENCY, message, params...)
}

func NewInvalidTransitionError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_INVALID_TRANSITION, message, params...)
}

func NewPluginCrashedError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_CRASHED, message, params...)
}

func NewPluginNotPermittedError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_NOT_PERMITTED, message, params...)
}

func NewAccessDeniedError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_ACCESS_DENIED, message, params...)
}

func NewCollectionNotPermittedError(message string, params ...interface{}) *Error {
	return New(ERR_PLUGIN_COLLECTION_NOT_PERMITTED, message, params...)
}
