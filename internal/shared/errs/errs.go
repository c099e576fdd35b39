// Package errs defines the coded error taxonomy shared by the session host
// and its consumers.
//
// Every error carries a stable Code so it can cross the transport as
// {code, message} and still match with errors.Is on the far side:
//
//	_, err := client.WriteToSession(ctx, id, data)
//	if errors.Is(err, errs.ErrSessionNotFound) {
//	    // the session is gone
//	}
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error class on the wire.
type Code string

const (
	CodeSessionNotFound   Code = "session_not_found"
	CodeCapacityExceeded  Code = "capacity_exceeded"
	CodeTransport         Code = "transport_error"
	CodeTimeout           Code = "timeout"
	CodeProcessSpawn      Code = "process_spawn_error"
	CodeShellNotAvailable Code = "shell_not_available"
	CodeInvalidArgument   Code = "invalid_argument"
	CodeDuplicateSession  Code = "duplicate_session"
	CodeInternal          Code = "internal"
)

// Error is a coded error. Two Errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Sentinels for errors.Is comparisons.
var (
	ErrSessionNotFound   = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrCapacityExceeded  = &Error{Code: CodeCapacityExceeded, Message: "session capacity exceeded"}
	ErrTransport         = &Error{Code: CodeTransport, Message: "transport error"}
	ErrTimeout           = &Error{Code: CodeTimeout, Message: "timed out"}
	ErrProcessSpawn      = &Error{Code: CodeProcessSpawn, Message: "failed to spawn process"}
	ErrShellNotAvailable = &Error{Code: CodeShellNotAvailable, Message: "shell not available"}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrDuplicateSession  = &Error{Code: CodeDuplicateSession, Message: "session id already in use"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a coded error with a message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around a cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// SessionNotFound reports an unknown session id.
func SessionNotFound(id string) *Error {
	return New(CodeSessionNotFound, "session not found: %s", id)
}

// Transport reports a transport-level failure.
func Transport(format string, args ...interface{}) *Error {
	return New(CodeTransport, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FromWire rebuilds an error received from the transport.
func FromWire(code, message string) error {
	if code == "" {
		code = string(CodeInternal)
	}
	return &Error{Code: Code(code), Message: message}
}
