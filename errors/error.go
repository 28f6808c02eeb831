// Package errors defines the tagged error value used across opnetd instead
// of ad-hoc error strings or panics crossing subsystem boundaries.
package errors

import (
	"errors"
	"fmt"
	"reflect"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrData carries structured, error-shaped detail alongside an Error
// (e.g. the peer-blacklist reason, the failing plugin id).
type ErrData interface {
	Error() string
}

type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
	Data       ErrData
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	dataMsg := ""
	if e.Data != nil {
		dataMsg = e.Data.Error()
	}

	if e.WrappedErr == nil {
		if dataMsg == "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Message)
		}
		return fmt.Sprintf("%s: %s, data: %s", e.Code, e.Message, dataMsg)
	}

	if dataMsg == "" {
		return fmt.Sprintf("%s (code %d): %s: %v", e.Code, e.Code, e.Message, e.WrappedErr)
	}

	return fmt.Sprintf("%s (code %d): %s: %v, data: %s", e.Code, e.Code, e.Message, e.WrappedErr, dataMsg)
}

// Is reports whether error codes match, unwrapping through Error chains.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) {
		if e.Code == ue.Code {
			return true
		}

		if e.WrappedErr == nil {
			return false
		}
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if ue, ok := unwrapped.(*Error); ok {
			return ue.Is(target)
		}
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if e.Data != nil {
		if data, ok := e.Data.(error); ok {
			return errors.As(data, target)
		}
	}

	if e.WrappedErr != nil {
		if reflect.ValueOf(e.WrappedErr).Kind() == reflect.Ptr && reflect.ValueOf(e.WrappedErr).IsNil() {
			return false
		}
		return errors.As(e.WrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error, pulling a trailing error/*Error param out of params
// (mirroring fmt.Errorf's %w convention without requiring it).
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr error

	if len(params) > 0 {
		lastParam := params[len(params)-1]

		if err, ok := lastParam.(*Error); ok {
			wErr = err
			params = params[:len(params)-1]
		} else if err, ok := lastParam.(error); ok {
			wErr = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{
		Code:       code,
		Message:    message,
		WrappedErr: wErr,
	}
}

// WrapGRPC turns an Error into one whose WrappedErr is a gRPC status error,
// so that transport code can pass it straight to a gRPC handler return.
func WrapGRPC(err *Error) *Error {
	if err == nil {
		return nil
	}

	st := status.New(ErrorCodeToGRPCCode(err.Code), fmt.Sprintf("%s: %s", err.Code, err.Message))

	return &Error{
		Code:       err.Code,
		Message:    err.Message,
		WrappedErr: st.Err(),
	}
}

// UnwrapGRPC recovers an Error from a gRPC status error received over the wire.
func UnwrapGRPC(err error) *Error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return New(ERR_UNKNOWN, err.Error())
	}

	switch st.Code() {
	case codes.NotFound:
		return New(ERR_NOT_FOUND, st.Message())
	case codes.InvalidArgument:
		return New(ERR_INVALID_ARGUMENT, st.Message())
	case codes.ResourceExhausted:
		return New(ERR_THRESHOLD_EXCEEDED, st.Message())
	case codes.Unavailable:
		return New(ERR_SERVICE_UNAVAILABLE, st.Message())
	default:
		return New(ERR_UNKNOWN, st.Message())
	}
}

// ErrorCodeToGRPCCode maps application error codes to gRPC status codes.
func ErrorCodeToGRPCCode(code ERR) codes.Code {
	switch code {
	case ERR_NOT_FOUND, ERR_BLOCK_NOT_FOUND, ERR_HEADER_NOT_FOUND:
		return codes.NotFound
	case ERR_INVALID_ARGUMENT, ERR_VALIDATION_ERROR, ERR_INVALID_SIGNATURE, ERR_INVALID_CHECKSUM, ERR_SEMVER_MISMATCH:
		return codes.InvalidArgument
	case ERR_THRESHOLD_EXCEEDED, ERR_TOO_MANY_PENDING_REQUESTS, ERR_QUEUE_FULL, ERR_BACKPRESSURE:
		return codes.ResourceExhausted
	case ERR_SERVICE_UNAVAILABLE, ERR_SERVICE_NOT_STARTED:
		return codes.Unavailable
	case ERR_NOT_IMPLEMENTED:
		return codes.Unimplemented
	case ERR_CANCELLED:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
