package client

import "fmt"

// callError mirrors mdp.DispatchError's shape so callers can use the
// same errors.Is checks against the mdp sentinel kinds regardless of
// whether the failure originated in the broker or in the fabric itself.
type callError struct {
	kind    error
	message string
}

func (e *callError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *callError) Unwrap() error {
	return e.kind
}

func newCallError(kind error, message string) error {
	return &callError{kind: kind, message: message}
}
