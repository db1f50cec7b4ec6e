package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Standard errors
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrClosed               = errors.New("closed")
)

// Domain-specific errors
var (
	// ErrDecode marks inbound bytes that are not a well-formed envelope.
	ErrDecode = errors.New("malformed envelope")

	// ErrEmptyMessage marks an envelope whose message trims to nothing.
	// It is also reported as ErrDecode.
	ErrEmptyMessage = &decodeError{msg: "message is empty"}

	// ErrTransport marks read/write failures on a single connection.
	ErrTransport = errors.New("transport failure")

	// ErrNotConnected is returned when sending outside the Connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrRetryExhausted is reported once the reconnection budget is spent.
	ErrRetryExhausted = errors.New("reconnection attempts exhausted")
)

type decodeError struct {
	msg string
}

func (e *decodeError) Error() string { return e.msg }

// Is lets ErrEmptyMessage match ErrDecode.
func (e *decodeError) Is(target error) bool {
	return target == ErrDecode
}

// Wrap wraps an error with additional context and a stack trace
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

// Wrapf is Wrap with a format string
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
