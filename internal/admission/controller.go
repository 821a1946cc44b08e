package admission

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config encapsulates the construction parameters of a Controller.
type Config struct {
	// Default applies to endpoint keys without an entry in Policies.
	// A zero value means DefaultPolicy().
	Default  Policy
	Policies map[string]Policy
	Logger   zerolog.Logger
}

// Ticket is proof of admission. Pass it to Complete exactly once; further
// calls are ignored.
type Ticket struct {
	ID       string
	Endpoint string
	Admitted time.Time
	Waited   time.Duration

	requestTimeout time.Duration
	done           atomic.Bool
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeRequestTimeout
)

type waiter struct {
	id       string
	enqueued time.Time
	ready    chan struct{}
	// settled, ticket and err are guarded by Controller.mu.
	settled bool
	ticket  *Ticket
	err     error
}

type endpoint struct {
	key    string
	policy Policy
	active int
	queue  *list.List

	completed       uint64
	failed          uint64
	rejected        uint64
	queueTimeouts   uint64
	requestTimeouts uint64
	cancelled       uint64
	totalProcessing time.Duration
	maxProcessing   time.Duration
	maxQueued       int
}

// Controller bounds concurrency per endpoint key with a FIFO waiting queue.
// Every state transition happens under one mutex and never blocks.
type Controller struct {
	mu        sync.Mutex
	defaults  Policy
	policies  map[string]Policy
	endpoints map[string]*endpoint
	log       zerolog.Logger
}

// New constructs a Controller. Endpoints named in cfg.Policies are registered
// up front so they show in snapshots before their first request.
func New(cfg Config) *Controller {
	def := cfg.Default
	if def == (Policy{}) {
		def = DefaultPolicy()
	}
	c := &Controller{
		defaults:  def.normalize(),
		policies:  make(map[string]Policy, len(cfg.Policies)),
		endpoints: make(map[string]*endpoint),
		log:       cfg.Logger.With().Str("component", "admission").Logger(),
	}
	for k, p := range cfg.Policies {
		c.policies[k] = p.normalize()
		c.endpointLocked(k)
		c.warnUnbounded(k, c.policies[k])
	}
	c.warnUnbounded("default", c.defaults)
	return c
}

func (c *Controller) warnUnbounded(key string, p Policy) {
	if p.WaitsUnbounded() {
		c.log.Warn().Str("endpoint", key).Int("max_queue", p.MaxQueueSize).
			Msg("queue timeout is zero; queued requests wait until capacity frees or the caller gives up")
	}
}

func (c *Controller) endpointLocked(key string) *endpoint {
	ep := c.endpoints[key]
	if ep == nil {
		p, ok := c.policies[key]
		if !ok {
			p = c.defaults
		}
		ep = &endpoint{key: key, policy: p, queue: list.New()}
		c.endpoints[key] = ep
	}
	return ep
}

func newTicket(ep *endpoint, enqueued time.Time) *Ticket {
	now := time.Now()
	return &Ticket{
		ID:             uuid.NewString(),
		Endpoint:       ep.key,
		Admitted:       now,
		Waited:         now.Sub(enqueued),
		requestTimeout: ep.policy.RequestTimeout,
	}
}

// Admit admits the caller immediately when the endpoint has a free slot,
// queues it FIFO when the queue has room, and rejects it otherwise. A queued
// caller is released by capacity, by QueueTimeout (ErrQueueTimeout), or by
// its own context (ctx.Err()).
func (c *Controller) Admit(ctx context.Context, key string) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	c.mu.Lock()
	ep := c.endpointLocked(key)
	p := ep.policy
	if ep.active < p.MaxConcurrent {
		ep.active++
		t := newTicket(ep, now)
		c.mu.Unlock()
		return t, nil
	}
	if ep.queue.Len() >= p.MaxQueueSize {
		ep.rejected++
		re := &RejectedError{Endpoint: key, Reason: ErrQueueFull, Stats: ep.snapshot()}
		c.mu.Unlock()
		c.log.Warn().Str("endpoint", key).Int("active", re.Stats.Active).Int("queued", re.Stats.Queued).Msg("rejected: queue full")
		return nil, re
	}
	w := &waiter{id: uuid.NewString(), enqueued: now, ready: make(chan struct{})}
	elem := ep.queue.PushBack(w)
	if n := ep.queue.Len(); n > ep.maxQueued {
		ep.maxQueued = n
	}
	depth := ep.queue.Len()
	c.mu.Unlock()
	c.log.Debug().Str("endpoint", key).Str("waiter", w.id).Int("position", depth).Msg("queued")

	var expired <-chan time.Time
	if p.QueueTimeout > 0 {
		timer := time.NewTimer(p.QueueTimeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-w.ready:
		return w.result()
	case <-expired:
		return c.abandon(ep, elem, w, ErrQueueTimeout)
	case <-ctx.Done():
		return c.abandon(ep, elem, w, ctx.Err())
	}
}

// result is read after ready is closed, which orders it after settlement.
func (w *waiter) result() (*Ticket, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.ticket, nil
}

// abandon removes a waiter that gave up. If it was settled in the meantime
// the settlement wins.
func (c *Controller) abandon(ep *endpoint, elem *list.Element, w *waiter, reason error) (*Ticket, error) {
	c.mu.Lock()
	if w.settled {
		c.mu.Unlock()
		<-w.ready
		return w.result()
	}
	w.settled = true
	ep.queue.Remove(elem)
	var err error
	if reason == ErrQueueTimeout {
		ep.rejected++
		ep.queueTimeouts++
		err = &RejectedError{Endpoint: ep.key, Reason: ErrQueueTimeout, Stats: ep.snapshot()}
	} else {
		ep.cancelled++
		err = reason
	}
	c.mu.Unlock()
	close(w.ready)
	c.log.Warn().Str("endpoint", ep.key).Str("waiter", w.id).Dur("waited", time.Since(w.enqueued)).Err(reason).Msg("left queue")
	return nil, err
}

// Complete releases t's slot, records its processing time and outcome, and
// admits queued waiters FIFO while capacity remains.
func (c *Controller) Complete(t *Ticket, success bool) {
	o := outcomeFailure
	if success {
		o = outcomeSuccess
	}
	c.finish(t, o)
}

func (c *Controller) finish(t *Ticket, o outcome) {
	if t == nil || !t.done.CompareAndSwap(false, true) {
		return
	}
	dur := time.Since(t.Admitted)
	c.mu.Lock()
	ep := c.endpointLocked(t.Endpoint)
	if ep.active > 0 {
		ep.active--
	}
	ep.totalProcessing += dur
	if dur > ep.maxProcessing {
		ep.maxProcessing = dur
	}
	switch o {
	case outcomeSuccess:
		ep.completed++
	case outcomeRequestTimeout:
		ep.requestTimeouts++
		ep.failed++
	default:
		ep.failed++
	}
	released := c.drainLocked(ep)
	c.mu.Unlock()
	for _, w := range released {
		close(w.ready)
	}
}

// drainLocked admits waiters from the head of the queue while capacity
// remains. Callers close the returned waiters' ready channels after unlocking.
func (c *Controller) drainLocked(ep *endpoint) []*waiter {
	var released []*waiter
	for ep.active < ep.policy.MaxConcurrent && ep.queue.Len() > 0 {
		w := ep.queue.Remove(ep.queue.Front()).(*waiter)
		w.settled = true
		ep.active++
		w.ticket = newTicket(ep, w.enqueued)
		released = append(released, w)
	}
	return released
}

// Do admits the caller on key, runs fn, and completes the ticket with fn's
// outcome. fn gets a context bounded by the endpoint's RequestTimeout; when
// that fires Do returns ErrRequestTimeout at once and releases the slot
// without waiting for fn to return.
func (c *Controller) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	t, err := c.Admit(ctx, key)
	if err != nil {
		return err
	}
	if t.requestTimeout <= 0 {
		err := c.call(ctx, fn)
		c.Complete(t, err == nil)
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.call(rctx, fn) }()
	select {
	case err := <-done:
		c.Complete(t, err == nil)
		return err
	case <-rctx.Done():
		if ctx.Err() != nil {
			c.Complete(t, false)
			return ctx.Err()
		}
		c.finish(t, outcomeRequestTimeout)
		c.log.Warn().Str("endpoint", key).Str("ticket", t.ID).Dur("timeout", t.requestTimeout).Msg("request timeout")
		return fmt.Errorf("endpoint %s: %w after %s", key, ErrRequestTimeout, t.requestTimeout)
	}
}

func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx)
}

// SetPolicy replaces the policy for key. Raising capacity admits queued
// waiters; lowering MaxQueueSize rejects the newest waiters with ErrQueueFull.
func (c *Controller) SetPolicy(key string, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.policies[key] = p
	ep := c.endpointLocked(key)
	ep.policy = p
	released := c.drainLocked(ep)
	var rejected []*waiter
	for ep.queue.Len() > p.MaxQueueSize {
		w := ep.queue.Remove(ep.queue.Back()).(*waiter)
		w.settled = true
		ep.rejected++
		rejected = append(rejected, w)
	}
	snap := ep.snapshot()
	for _, w := range rejected {
		w.err = &RejectedError{Endpoint: key, Reason: ErrQueueFull, Stats: snap}
	}
	c.mu.Unlock()
	for _, w := range append(released, rejected...) {
		close(w.ready)
	}
	c.log.Info().Str("endpoint", key).Int("max_concurrent", p.MaxConcurrent).Int("max_queue", p.MaxQueueSize).
		Int("admitted", len(released)).Int("rejected", len(rejected)).Msg("policy updated")
	c.warnUnbounded(key, p)
	return nil
}

// Policy returns the effective policy for key.
func (c *Controller) Policy(key string) Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep := c.endpoints[key]; ep != nil {
		return ep.policy
	}
	if p, ok := c.policies[key]; ok {
		return p
	}
	return c.defaults
}

// Purge rejects every waiter on key with ErrQueuePurged and returns how many
// were removed. Admitted requests are unaffected.
func (c *Controller) Purge(key string) int {
	c.mu.Lock()
	ep := c.endpoints[key]
	if ep == nil {
		c.mu.Unlock()
		return 0
	}
	var purged []*waiter
	for ep.queue.Len() > 0 {
		w := ep.queue.Remove(ep.queue.Front()).(*waiter)
		w.settled = true
		ep.rejected++
		purged = append(purged, w)
	}
	snap := ep.snapshot()
	for _, w := range purged {
		w.err = &RejectedError{Endpoint: key, Reason: ErrQueuePurged, Stats: snap}
	}
	c.mu.Unlock()
	for _, w := range purged {
		close(w.ready)
	}
	if len(purged) > 0 {
		c.log.Warn().Str("endpoint", key).Int("purged", len(purged)).Msg("queue purged")
	}
	return len(purged)
}

// Snapshot returns the stats for key; unknown keys report the default policy
// with zero counters.
func (c *Controller) Snapshot(key string) EndpointStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep := c.endpoints[key]; ep != nil {
		return ep.snapshot()
	}
	return (&endpoint{key: key, policy: c.defaults, queue: list.New()}).snapshot()
}

// SnapshotAll returns stats for every known endpoint, sorted by key.
func (c *Controller) SnapshotAll() []EndpointStats {
	c.mu.Lock()
	out := make([]EndpointStats, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		out = append(out, ep.snapshot())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
