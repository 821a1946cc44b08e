package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Module is a stateful native engine handle. Close releases it; a closed
// handle is never reused.
type Module interface {
	Close() error
}

// Loader performs the expensive load-and-validate sequence for a module.
type Loader[M Module] func(ctx context.Context) (M, error)

// State is the lifecycle state of a module.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateBlocked       State = "blocked"
)

// Defaults applied when corresponding LifecycleConfig fields are unset.
const (
	defaultMaxInitFailures    = 3
	defaultInitCooldown       = 60 * time.Second
	defaultErrorThreshold     = 5
	defaultErrorResetInterval = 60 * time.Second
	defaultInitTimeout        = 2 * time.Minute
)

// LifecycleConfig encapsulates the tunables of a Lifecycle.
type LifecycleConfig struct {
	Name               string
	MaxInitFailures    int
	InitCooldown       time.Duration
	ErrorThreshold     int
	ErrorResetInterval time.Duration
	InitTimeout        time.Duration
	// ReclaimMemory asks the runtime to return freed memory to the OS after a reset.
	ReclaimMemory bool
	Logger        zerolog.Logger
	Publisher     EventPublisher
	// Clock is used for cooldown and error-window arithmetic; defaults to time.Now.
	Clock func() time.Time
}

// Lifecycle owns one module handle: lazy initialization with a circuit
// breaker on repeated init failures, and an asynchronous reset once
// consecutive invocation errors cross a threshold.
type Lifecycle[M Module] struct {
	cfg  LifecycleConfig
	load Loader[M]
	log  zerolog.Logger
	pub  EventPublisher
	now  func() time.Time

	mu              sync.Mutex
	handle          M
	ready           bool
	initializing    bool
	initDone        chan struct{}
	errorCount      int
	lastError       time.Time
	initFailures    int
	lastInitFailure time.Time
	lastInitErr     string
	resetPending    bool
	resets          uint64
	inits           uint64
	closed          bool
	resetWG         sync.WaitGroup
}

// NewLifecycle constructs a Lifecycle around load. No loading happens until
// the first EnsureReady.
func NewLifecycle[M Module](load Loader[M], cfg LifecycleConfig) *Lifecycle[M] {
	if cfg.Name == "" {
		cfg.Name = "module"
	}
	if cfg.MaxInitFailures <= 0 {
		cfg.MaxInitFailures = defaultMaxInitFailures
	}
	if cfg.InitCooldown <= 0 {
		cfg.InitCooldown = defaultInitCooldown
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = defaultErrorThreshold
	}
	if cfg.ErrorResetInterval <= 0 {
		cfg.ErrorResetInterval = defaultErrorResetInterval
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	l := &Lifecycle[M]{
		cfg:  cfg,
		load: load,
		log:  cfg.Logger.With().Str("module", cfg.Name).Logger(),
		pub:  cfg.Publisher,
		now:  cfg.Clock,
	}
	if l.pub == nil {
		l.pub = noopPublisher{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Name returns the module name used in logs, events and errors.
func (l *Lifecycle[M]) Name() string { return l.cfg.Name }

// EnsureReady returns a ready module handle, initializing it if needed.
// While the circuit is open it fails immediately with *CircuitOpenError.
// Callers arriving during another caller's initialization wait for it and
// get ErrConcurrentInitFailed if it does not succeed.
func (l *Lifecycle[M]) EnsureReady(ctx context.Context) (M, error) {
	var zero M
	l.mu.Lock()
	if l.ready {
		h := l.handle
		l.mu.Unlock()
		return h, nil
	}
	if l.closed {
		l.mu.Unlock()
		return zero, ErrClosed
	}
	if l.initFailures >= l.cfg.MaxInitFailures {
		remaining := l.cfg.InitCooldown - l.now().Sub(l.lastInitFailure)
		if remaining > 0 {
			failures := l.initFailures
			l.mu.Unlock()
			return zero, &CircuitOpenError{Module: l.cfg.Name, Failures: failures, Remaining: remaining}
		}
		l.log.Info().Int("init_failures", l.initFailures).Msg("init cooldown elapsed; retrying")
		l.initFailures = 0
	}
	if l.initializing {
		wait := l.initDone
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.ready {
			return l.handle, nil
		}
		return zero, ErrConcurrentInitFailed
	}
	l.initializing = true
	done := make(chan struct{})
	l.initDone = done
	l.mu.Unlock()
	return l.initialize(ctx, done)
}

func (l *Lifecycle[M]) initialize(ctx context.Context, done chan struct{}) (M, error) {
	var zero M
	start := l.now()
	l.log.Info().Msg("init start")
	l.pub.Publish(Event{Name: "init_start", Module: l.cfg.Name, Fields: map[string]any{}})

	// A caller giving up must not abort a load other callers may be waiting on.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.InitTimeout)
	h, err := l.safeLoad(lctx)
	cancel()

	l.mu.Lock()
	l.initializing = false
	close(done)
	if err == nil && l.closed {
		l.mu.Unlock()
		_ = h.Close()
		return zero, ErrClosed
	}
	if err != nil {
		l.initFailures++
		l.lastInitFailure = l.now()
		l.lastInitErr = err.Error()
		failures := l.initFailures
		l.mu.Unlock()
		blocked := failures >= l.cfg.MaxInitFailures
		l.log.Error().Err(err).Int("init_failures", failures).Bool("blocked", blocked).Msg("init failed")
		l.pub.Publish(Event{Name: "init_failed", Module: l.cfg.Name, Fields: map[string]any{"error": err.Error(), "failures": failures}})
		if blocked {
			l.log.Warn().Dur("cooldown", l.cfg.InitCooldown).Msg("circuit open")
			l.pub.Publish(Event{Name: "circuit_open", Module: l.cfg.Name, Fields: map[string]any{"cooldown_ms": l.cfg.InitCooldown.Milliseconds()}})
		}
		return zero, &InitError{Module: l.cfg.Name, Err: err}
	}
	l.handle = h
	l.ready = true
	l.initFailures = 0
	l.errorCount = 0
	l.inits++
	l.mu.Unlock()
	dur := l.now().Sub(start)
	l.log.Info().Dur("dur", dur).Msg("init ready")
	l.pub.Publish(Event{Name: "init_ready", Module: l.cfg.Name, Fields: map[string]any{"dur_ms": dur.Milliseconds()}})
	return h, nil
}

func (l *Lifecycle[M]) safeLoad(ctx context.Context) (h M, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return l.load(ctx)
}

// RecordError notes a failed invocation. Errors further apart than the reset
// interval do not accumulate. Crossing the threshold schedules one
// asynchronous reset; RecordError itself never blocks on it.
func (l *Lifecycle[M]) RecordError(err error) {
	l.mu.Lock()
	now := l.now()
	if !l.lastError.IsZero() && now.Sub(l.lastError) > l.cfg.ErrorResetInterval {
		l.errorCount = 0
	}
	l.errorCount++
	l.lastError = now
	count := l.errorCount
	trigger := count >= l.cfg.ErrorThreshold && !l.resetPending && !l.closed
	if trigger {
		l.resetPending = true
		l.errorCount = 0
		l.resetWG.Add(1)
	}
	l.mu.Unlock()

	ev := l.log.Warn().Int("consecutive_errors", count)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("invocation failed")
	if trigger {
		go func() {
			defer l.resetWG.Done()
			l.reset("error_threshold")
		}()
	}
}

// RecordSuccess clears the consecutive error count.
func (l *Lifecycle[M]) RecordSuccess() {
	l.mu.Lock()
	l.errorCount = 0
	l.mu.Unlock()
}

// Reset drops the current handle synchronously and closes an open circuit.
// The next EnsureReady initializes a fresh module.
func (l *Lifecycle[M]) Reset() { l.reset("manual") }

func (l *Lifecycle[M]) reset(reason string) {
	var zero M
	l.mu.Lock()
	if reason == "manual" {
		l.initFailures = 0
	}
	h, had := l.handle, l.ready
	l.handle = zero
	l.ready = false
	l.resetPending = false
	l.errorCount = 0
	l.resets++
	l.mu.Unlock()

	if had {
		if err := h.Close(); err != nil {
			l.log.Warn().Err(err).Msg("close during reset")
		}
	}
	if l.cfg.ReclaimMemory {
		debug.FreeOSMemory()
	}
	l.log.Warn().Str("reason", reason).Bool("had_handle", had).Msg("module reset")
	l.pub.Publish(Event{Name: "reset", Module: l.cfg.Name, Fields: map[string]any{"reason": reason}})
}

// Close waits for scheduled resets and releases the handle. EnsureReady
// fails with ErrClosed afterwards.
func (l *Lifecycle[M]) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	l.resetWG.Wait()

	var zero M
	l.mu.Lock()
	h, had := l.handle, l.ready
	l.handle = zero
	l.ready = false
	l.mu.Unlock()
	if had {
		return h.Close()
	}
	return nil
}

// Health is a read-only projection of the lifecycle state.
type Health struct {
	Module            string
	State             State
	ConsecutiveErrors int
	LastError         time.Time
	InitFailures      int
	LastInitFailure   time.Time
	LastInitError     string
	CooldownRemaining time.Duration
	Inits             uint64
	Resets            uint64
}

// Health returns a snapshot of the lifecycle state.
func (l *Lifecycle[M]) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := Health{
		Module:            l.cfg.Name,
		State:             l.stateLocked(),
		ConsecutiveErrors: l.errorCount,
		LastError:         l.lastError,
		InitFailures:      l.initFailures,
		LastInitFailure:   l.lastInitFailure,
		LastInitError:     l.lastInitErr,
		Inits:             l.inits,
		Resets:            l.resets,
	}
	if h.State == StateBlocked {
		h.CooldownRemaining = l.cfg.InitCooldown - l.now().Sub(l.lastInitFailure)
	}
	return h
}

// State returns the current lifecycle state.
func (l *Lifecycle[M]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Lifecycle[M]) stateLocked() State {
	switch {
	case l.ready:
		return StateReady
	case l.initializing:
		return StateInitializing
	case l.initFailures >= l.cfg.MaxInitFailures && l.now().Sub(l.lastInitFailure) < l.cfg.InitCooldown:
		return StateBlocked
	default:
		return StateUninitialized
	}
}
