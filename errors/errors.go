// Package errors wraps POSIX errno codes for the volume and adapter layers.
package errors

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around a system errno code, with an optional
// customized message. It is the error type of the volume operations;
// failures while loading or flushing the metadata regions come back
// collected in a *multierror.Error whose entries are DriverErrors.
type DriverError struct {
	Errno   syscall.Errno
	message string
}

// Error implements the `error` interface.
func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Errno.Error()
}

// Unwrap lets callers use errors.Is(err, syscall.ENOENT) and friends.
func (e *DriverError) Unwrap() error {
	return e.Errno
}

// WithMessage returns a copy of e with an additional message appended.
func (e *DriverError) WithMessage(message string) *DriverError {
	return &DriverError{
		Errno:   e.Errno,
		message: fmt.Sprintf("%s: %s", e.Error(), message),
	}
}

// New creates a DriverError with the errno's default message.
func New(errno syscall.Errno) *DriverError {
	return &DriverError{Errno: errno}
}

// NewWithMessage creates a DriverError with a custom message.
func NewWithMessage(errno syscall.Errno, message string) *DriverError {
	return &DriverError{Errno: errno, message: fmt.Sprintf("%s: %s", errno.Error(), message)}
}

// NewFromError wraps an arbitrary error (typically from the backing block
// device) as a DriverError under the given errno.
func NewFromError(errno syscall.Errno, err error) *DriverError {
	if err == nil {
		return nil
	}
	return &DriverError{Errno: errno, message: fmt.Sprintf("%s: %s", errno.Error(), err.Error())}
}

// Is reports whether err is a *DriverError carrying the given errno. It
// does not unwrap other error types; the standard errors.Is does.
func Is(err error, errno syscall.Errno) bool {
	de, ok := err.(*DriverError)
	if !ok {
		return false
	}
	return de.Errno == errno
}
