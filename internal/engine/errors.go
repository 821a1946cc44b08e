package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConcurrentInitFailed is returned to callers that waited on another
	// caller's initialization which did not produce a ready module.
	ErrConcurrentInitFailed = errors.New("concurrent module initialization failed")

	// ErrInvocationTimeout signals a single module call exceeded its hard timeout.
	// The call may still be running; only the caller was released.
	ErrInvocationTimeout = errors.New("module invocation timed out")

	// ErrClosed is returned for work submitted to, or pending in, a closed executor.
	ErrClosed = errors.New("executor closed")
)

// CircuitOpenError is returned while initialization is blocked after repeated
// failures. Callers should not retry before Remaining has elapsed.
type CircuitOpenError struct {
	Module    string
	Failures  int
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("module %s unavailable after %d failed initializations; retry in %s",
		e.Module, e.Failures, e.Remaining.Round(time.Second))
}

// InitError wraps a failed load-and-validate attempt.
type InitError struct {
	Module string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("module %s initialization failed: %v", e.Module, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking module call.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return fmt.Sprintf("module call panicked: %v", e.Value) }

// IsCircuitOpen reports whether err means initialization is blocked, and
// returns the remaining cooldown.
func IsCircuitOpen(err error) (time.Duration, bool) {
	var ce *CircuitOpenError
	if errors.As(err, &ce) {
		return ce.Remaining, true
	}
	return 0, false
}

// IsInitFailure reports whether err came from a failed initialization,
// including a failed concurrent initialization.
func IsInitFailure(err error) bool {
	var ie *InitError
	return errors.As(err, &ie) || errors.Is(err, ErrConcurrentInitFailed)
}
