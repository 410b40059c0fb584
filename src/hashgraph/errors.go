package hashgraph

import "fmt"

// EventErrType classifies the reasons an Event is refused by InsertEvent.
type EventErrType uint32

const (
	// DuplicateEvent means the Event is already in the hashgraph. Inserting it
	// again is a no-op and callers may ignore this error.
	DuplicateEvent EventErrType = iota
	// UnknownParent means one of the Event's parents is not in the hashgraph
	// yet. The Event can be retried once the parent is inserted.
	UnknownParent
	// InvalidSignature means the signature does not match the creator's key.
	InvalidSignature
	// InvalidEvent covers malformed Events: unknown creator, bad parent
	// references, or a self-parent created by someone else.
	InvalidEvent
)

var eventErrTypes = []string{
	"Duplicate Event",
	"Unknown Parent",
	"Invalid Signature",
	"Invalid Event",
}

// EventError is returned by InsertEvent when an Event is refused.
type EventError struct {
	errType EventErrType
	hash    string
	msg     string
}

// NewEventError ...
func NewEventError(errType EventErrType, hash string, msg string) EventError {
	return EventError{
		errType: errType,
		hash:    hash,
		msg:     msg,
	}
}

// Type returns the classification of the error
func (e EventError) Type() EventErrType {
	return e.errType
}

// Error implements the error interface
func (e EventError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s: %s", eventErrTypes[e.errType], e.hash)
	}
	return fmt.Sprintf("%s: %s: %s", eventErrTypes[e.errType], e.hash, e.msg)
}

// IsEventError checks that err is an EventError of the given type.
func IsEventError(err error, t EventErrType) bool {
	evErr, ok := err.(EventError)
	return ok && evErr.errType == t
}

// IsValidationError reports whether err means the Event itself is bad and
// must be dropped: an invalid signature or a malformed Event.
func IsValidationError(err error) bool {
	return IsEventError(err, InvalidSignature) || IsEventError(err, InvalidEvent)
}

// InvariantError signals that a consensus invariant was about to be broken,
// like deciding the fame of a witness twice with different values. It points
// to a local bug or to Byzantine behaviour beyond the fault threshold.
type InvariantError struct {
	msg string
}

// NewInvariantError ...
func NewInvariantError(format string, args ...interface{}) InvariantError {
	return InvariantError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e InvariantError) Error() string {
	return "invariant violation: " + e.msg
}

// IsInvariantError ...
func IsInvariantError(err error) bool {
	_, ok := err.(InvariantError)
	return ok
}
