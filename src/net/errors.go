package net

import (
	"errors"
	"fmt"
)

// ErrTransportShutdown is returned when operations on a transport are invoked
// after it has been terminated.
var ErrTransportShutdown = errors.New("transport shutdown")

// TransportError wraps a failure to reach a peer or to move bytes to and from
// it: dial, read, write, or timeout.
type TransportError struct {
	Op     string
	Target string
	Err    error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// SerializationError is returned when a message cannot be encoded or decoded.
// Callers treat it like a TransportError: the exchange is abandoned and the
// peer is tried again later.
type SerializationError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// RemoteError carries an error string returned by the peer that handled the
// request.
type RemoteError struct {
	Target string
	Msg    string
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s responded: %s", e.Target, e.Msg)
}

// IsTransportError returns true if err, or an error it wraps, is a
// TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsSerializationError returns true if err, or an error it wraps, is a
// SerializationError.
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// IsRemoteError returns true if err, or an error it wraps, is a RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
