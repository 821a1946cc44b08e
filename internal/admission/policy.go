package admission

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied to endpoints with no explicit policy.
const (
	defaultMaxConcurrent  = 1
	defaultMaxQueueSize   = 10
	defaultQueueTimeout   = 60 * time.Second
	defaultRequestTimeout = 120 * time.Second
)

// Policy bounds one logical endpoint. A zero QueueTimeout waits for capacity
// until the caller's context ends; a zero RequestTimeout leaves processing
// bounded only by the caller's context.
type Policy struct {
	MaxConcurrent  int
	MaxQueueSize   int
	QueueTimeout   time.Duration
	RequestTimeout time.Duration
}

// DefaultPolicy returns the policy used for endpoint keys with no explicit entry.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrent:  defaultMaxConcurrent,
		MaxQueueSize:   defaultMaxQueueSize,
		QueueTimeout:   defaultQueueTimeout,
		RequestTimeout: defaultRequestTimeout,
	}
}

// Validate reports every invalid field, joined.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent must be >= 1, got %d", p.MaxConcurrent))
	}
	if p.MaxQueueSize < 0 {
		errs = append(errs, fmt.Errorf("max queue size must be >= 0, got %d", p.MaxQueueSize))
	}
	if p.QueueTimeout < 0 {
		errs = append(errs, fmt.Errorf("queue timeout must not be negative, got %s", p.QueueTimeout))
	}
	if p.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", p.RequestTimeout))
	}
	return errors.Join(errs...)
}

// WaitsUnbounded reports whether queued requests have no queue timer and
// leave the queue only on capacity or when their caller gives up.
func (p Policy) WaitsUnbounded() bool {
	return p.MaxQueueSize > 0 && p.QueueTimeout == 0
}

// normalize clamps p into a usable policy so maxConcurrent >= 1 always holds.
func (p Policy) normalize() Policy {
	if p.MaxConcurrent < 1 {
		p.MaxConcurrent = 1
	}
	if p.MaxQueueSize < 0 {
		p.MaxQueueSize = 0
	}
	if p.QueueTimeout < 0 {
		p.QueueTimeout = 0
	}
	if p.RequestTimeout < 0 {
		p.RequestTimeout = 0
	}
	return p
}
