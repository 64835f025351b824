package mdp

import (
	"errors"
	"fmt"
)

// Error kinds distinguishable by callers, per the dispatch error taxonomy.
var (
	// ErrTimeout means no reply arrived within the deadline, or the
	// overflow budget on a client fabric was exceeded. Retryable.
	ErrTimeout = errors.New("mdp: timeout")

	// ErrExecutionError means a worker replied with ok=false, or a
	// transport-level send/recv failure occurred. Retryable.
	ErrExecutionError = errors.New("mdp: execution error")

	// ErrNoWorker means no worker could be checked out of the registry
	// within the acquisition bound. Retryable.
	ErrNoWorker = errors.New("mdp: no worker available")

	// ErrBadFrame means an inbound frame was unparseable. Not retryable.
	ErrBadFrame = errors.New("mdp: bad frame")

	// ErrProtocolError means a reply used an unexpected opcode. Not
	// retryable.
	ErrProtocolError = errors.New("mdp: protocol error")

	// ErrConnectionFailed means a socket could not be bound or connected.
	// Not retryable by the dispatch engine — it indicates a
	// configuration problem, not a transient fault.
	ErrConnectionFailed = errors.New("mdp: connection failed")
)

// DispatchError wraps one of the sentinel kinds above with a diagnostic
// message (the original fault text) and a captured stack trace, per the
// dispatch engine's diagnostic-payload discipline.
type DispatchError struct {
	Kind    error
	Message string
	Stack   string
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/As see through to the sentinel kind.
func (e *DispatchError) Unwrap() error {
	return e.Kind
}

// Retryable reports whether this failure kind may be retried by the
// dispatch engine's retry wrapper.
func (e *DispatchError) Retryable() bool {
	return errors.Is(e.Kind, ErrTimeout) ||
		errors.Is(e.Kind, ErrExecutionError) ||
		errors.Is(e.Kind, ErrNoWorker)
}

// newDispatchError builds a DispatchError, capturing a stack trace at the
// point of failure for operator diagnosis. The stack never influences
// control flow.
func newDispatchError(kind error, message string) *DispatchError {
	return &DispatchError{
		Kind:    kind,
		Message: message,
		Stack:   captureStack(),
	}
}
