package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultInvocationTimeout = 30 * time.Second

// Work is one unit of module work. It runs with the module handle obtained
// from the lifecycle and a context that is cancelled on invocation timeout.
type Work[M Module] func(ctx context.Context, m M) error

// ExecutorConfig encapsulates the tunables of an Executor.
type ExecutorConfig struct {
	// Timeout bounds a single invocation. Zero means the package default (30s).
	Timeout time.Duration
	Logger  zerolog.Logger
}

type job[M Module] struct {
	ctx      context.Context
	work     Work[M]
	result   chan error
	enqueued time.Time
}

// Executor serializes all calls into one non-reentrant module: submissions
// are queued FIFO and drained by a single goroutine, one at a time.
//
// On invocation timeout the caller is released and the queue moves on while
// the abandoned call keeps its goroutine until it returns. Its context is
// cancelled, so work that honours cancellation stops promptly.
type Executor[M Module] struct {
	lc      *Lifecycle[M]
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	queue  []*job[M]
	closed bool
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	inFlight  atomic.Bool
	abandoned atomic.Int64
}

// NewExecutor starts the drain goroutine for lc's module.
func NewExecutor[M Module](lc *Lifecycle[M], cfg ExecutorConfig) *Executor[M] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultInvocationTimeout
	}
	e := &Executor[M]{
		lc:      lc,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("module", lc.Name()).Logger(),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Lifecycle returns the lifecycle backing this executor.
func (e *Executor[M]) Lifecycle() *Lifecycle[M] { return e.lc }

// Submit enqueues work and waits for its result. A caller whose context ends
// while waiting is released with the context error; work that has not yet
// started is then skipped.
func (e *Executor[M]) Submit(ctx context.Context, work Work[M]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := &job[M]{ctx: ctx, work: work, result: make(chan error, 1), enqueued: time.Now()}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.queue = append(e.queue, j)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call submits fn to e and returns its value. The value travels on a per-call
// channel and is only received when Submit succeeds, so a caller released by
// timeout or cancellation never shares memory with the abandoned call.
func Call[M Module, T any](ctx context.Context, e *Executor[M], fn func(ctx context.Context, m M) (T, error)) (T, error) {
	out := make(chan T, 1)
	err := e.Submit(ctx, func(ctx context.Context, m M) error {
		v, err := fn(ctx, m)
		if err != nil {
			return err
		}
		out <- v
		return nil
	})
	var zero T
	if err != nil {
		return zero, err
	}
	select {
	case v := <-out:
		return v, nil
	default:
		return zero, nil
	}
}

func (e *Executor[M]) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			e.failPending()
			return
		default:
		}
		j := e.next()
		if j == nil {
			select {
			case <-e.wake:
				continue
			case <-e.quit:
				e.failPending()
				return
			}
		}
		e.execute(j)
	}
}

func (e *Executor[M]) next() *job[M] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	j := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return j
}

func (e *Executor[M]) execute(j *job[M]) {
	if err := j.ctx.Err(); err != nil {
		j.result <- err
		return
	}
	m, err := e.lc.EnsureReady(j.ctx)
	if err != nil {
		// Initialization failures are tracked by the lifecycle itself.
		e.failed.Add(1)
		j.result <- err
		return
	}

	callCtx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	res := make(chan error, 1)
	start := time.Now()
	e.inFlight.Store(true)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- &PanicError{Value: r}
			}
		}()
		res <- j.work(callCtx, m)
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case err = <-res:
	case <-timer.C:
		cancel()
		e.timedOut.Add(1)
		e.abandoned.Add(1)
		go func() {
			<-res
			e.abandoned.Add(-1)
		}()
		err = ErrInvocationTimeout
	}
	e.inFlight.Store(false)

	dur := time.Since(start)
	switch {
	case err == nil:
		e.processed.Add(1)
		e.lc.RecordSuccess()
		e.log.Debug().Dur("wait", start.Sub(j.enqueued)).Dur("dur", dur).Msg("invocation done")
	case j.ctx.Err() != nil && errors.Is(err, j.ctx.Err()):
		// The caller went away; not a module fault.
		e.failed.Add(1)
	default:
		e.failed.Add(1)
		e.lc.RecordError(err)
	}
	j.result <- err
}

func (e *Executor[M]) failPending() {
	e.mu.Lock()
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, j := range pending {
		j.result <- ErrClosed
	}
}

// Close stops the drain goroutine after the current invocation. Queued work
// fails with ErrClosed.
func (e *Executor[M]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.quit)
	e.mu.Unlock()
	<-e.done
}

// ExecutorStats is a snapshot of executor counters.
type ExecutorStats struct {
	Queued    int
	InFlight  bool
	Processed uint64
	Failed    uint64
	TimedOut  uint64
	Abandoned int64
}

// Stats returns current executor counters.
func (e *Executor[M]) Stats() ExecutorStats {
	e.mu.Lock()
	queued := len(e.queue)
	e.mu.Unlock()
	return ExecutorStats{
		Queued:    queued,
		InFlight:  e.inFlight.Load(),
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
		TimedOut:  e.timedOut.Load(),
		Abandoned: e.abandoned.Load(),
	}
}
