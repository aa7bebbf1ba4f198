package clamd

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error codes for machine-readable error classification.
const (
	CodeConnection    = "connection_error"
	CodeIO            = "io_error"
	CodeProtocolWrite = "protocol_write_error"
	CodeProtocolRead  = "protocol_read_error"
	CodeValidation    = "validation_error"
	CodeTimeout       = "timeout"
)

// Error is the base error type for all client errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates an error indicating the daemon could not be reached.
func NewConnectionError(msg string, cause error) *Error {
	return &Error{Code: CodeConnection, Message: msg, Cause: cause}
}

// NewIOError creates an error indicating a read or write failure on the
// source or on an established connection.
func NewIOError(msg string, cause error) *Error {
	return &Error{Code: CodeIO, Message: msg, Cause: cause}
}

// NewProtocolWriteError creates an error indicating a command or chunk could
// not be written to the daemon.
func NewProtocolWriteError(msg string, cause error) *Error {
	return &Error{Code: CodeProtocolWrite, Message: msg, Cause: cause}
}

// NewProtocolReadError creates an error indicating the daemon closed the
// connection before a complete response was received.
func NewProtocolReadError(msg string, cause error) *Error {
	return &Error{Code: CodeProtocolRead, Message: msg, Cause: cause}
}

// NewValidationError creates an error indicating invalid input.
func NewValidationError(msg string, cause error) *Error {
	return &Error{Code: CodeValidation, Message: msg, Cause: cause}
}

// NewTimeoutError creates an error indicating a deadline or cancellation.
func NewTimeoutError(msg string, cause error) *Error {
	return &Error{Code: CodeTimeout, Message: msg, Cause: cause}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConnectionError reports whether err is or wraps a connection error.
func IsConnectionError(err error) bool { return hasCode(err, CodeConnection) }

// IsIOError reports whether err is or wraps an I/O error.
func IsIOError(err error) bool { return hasCode(err, CodeIO) }

// IsProtocolWriteError reports whether err is or wraps a protocol write error.
func IsProtocolWriteError(err error) bool { return hasCode(err, CodeProtocolWrite) }

// IsProtocolReadError reports whether err is or wraps a protocol read error.
func IsProtocolReadError(err error) bool { return hasCode(err, CodeProtocolRead) }

// IsValidationError reports whether err is or wraps a validation error.
func IsValidationError(err error) bool { return hasCode(err, CodeValidation) }

// IsTimeoutError reports whether err is or wraps a timeout error.
func IsTimeoutError(err error) bool { return hasCode(err, CodeTimeout) }

// classifyDialError maps dial failures to client error types.
func classifyDialError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewTimeoutError("dial canceled", errors.Join(ctxErr, err))
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewConnectionError("DNS resolution failed", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewConnectionError("dial timed out", err)
	}

	return NewConnectionError("connection failed", err)
}
