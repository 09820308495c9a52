package hashgraph

import (
	"errors"
	"fmt"
)

// InvariantError reports a broken consensus invariant: a witness decided
// twice with different fame, an event received in two rounds, or the
// non-ancient window moving backwards. Processing must stop when one is
// returned, as continuing could fork the local history.
type InvariantError struct {
	msg   string
	cause error
}

func newInvariantError(format string, args ...interface{}) InvariantError {
	return InvariantError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e InvariantError) Error() string {
	if e.cause != nil {
		return "consensus invariant violated: " + e.msg + ": " + e.cause.Error()
	}
	return "consensus invariant violated: " + e.msg
}

// Unwrap returns the error that caused the violation, if any.
func (e InvariantError) Unwrap() error {
	return e.cause
}

// IsInvariantViolation checks whether err, or an error it wraps, is an
// InvariantError.
func IsInvariantViolation(err error) bool {
	var ie InvariantError
	return errors.As(err, &ie)
}

// ErrMalformedEvent is returned for events whose parent references cannot be
// valid, such as a self-parent created by another node.
var ErrMalformedEvent = errors.New("malformed event")
