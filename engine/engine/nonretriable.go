package engine

import "errors"

// NonRetriableError marks an error as a non-retriable domain error per spec
// §7 category 2: "no suitable model registered", workflow input validation
// failures, cancellation. Adapters that otherwise retry activities on any
// returned error (Temporal's default ActivityOptions.RetryPolicy) check
// IsNonRetriable before scheduling a retry so the orchestrator does not
// restart work that cannot succeed on a second attempt.
type NonRetriableError struct {
	err error
}

// NewNonRetriableError wraps err so IsNonRetriable reports true for it and
// for anything that wraps it.
func NewNonRetriableError(err error) *NonRetriableError {
	return &NonRetriableError{err: err}
}

func (e *NonRetriableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

// Unwrap preserves errors.Is/As against the wrapped error.
func (e *NonRetriableError) Unwrap() error { return e.err }

// NonRetriable reports true, satisfying the interface IsNonRetriable checks.
func (e *NonRetriableError) NonRetriable() bool { return true }

// IsNonRetriable reports whether err, or any error in its chain, was marked
// non-retriable via NewNonRetriableError (or implements the same
// `NonRetriable() bool` contract directly).
func IsNonRetriable(err error) bool {
	var nr interface{ NonRetriable() bool }
	if errors.As(err, &nr) {
		return nr.NonRetriable()
	}
	return false
}
