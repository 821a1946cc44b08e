package admission

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRejected is the class of every admission refusal. Use
	// errors.Is(err, ErrRejected) to tell overload apart from processing errors.
	ErrRejected = errors.New("request rejected")

	// ErrQueueFull means the endpoint queue already held MaxQueueSize waiters.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueTimeout means the request waited QueueTimeout without being admitted.
	ErrQueueTimeout = errors.New("queue timeout")

	// ErrQueuePurged means the waiter was removed by an operator purge.
	ErrQueuePurged = errors.New("queue purged")

	// ErrRequestTimeout means processing exceeded RequestTimeout after admission.
	// The work may still be running; only the caller and the slot were released.
	ErrRequestTimeout = errors.New("request timeout")
)

// RejectedError carries the reason and the endpoint state at rejection time.
// It matches both ErrRejected and its Reason under errors.Is.
type RejectedError struct {
	Endpoint string
	Reason   error
	Stats    EndpointStats
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("endpoint %s: %v (active=%d queued=%d)", e.Endpoint, e.Reason, e.Stats.Active, e.Stats.Queued)
}

func (e *RejectedError) Unwrap() []error { return []error{ErrRejected, e.Reason} }

// RetryAfter estimates how long a client should back off: the queue ahead of
// it divided across the endpoint's slots, at the observed average processing
// time. Never less than one second.
func (e *RejectedError) RetryAfter() time.Duration {
	s := e.Stats
	wait := s.AvgProcessing * time.Duration(s.Queued+1) / time.Duration(max(s.MaxConcurrent, 1))
	if wait < time.Second {
		wait = time.Second
	}
	return wait.Round(time.Second)
}

// IsOverloaded reports whether err is an admission rejection and returns it.
func IsOverloaded(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRequestTimeout reports whether err means processing ran past RequestTimeout.
func IsRequestTimeout(err error) bool { return errors.Is(err, ErrRequestTimeout) }
