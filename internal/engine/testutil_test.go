package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModule is a lightweight in-memory module used for tests.
type fakeModule struct {
	id     int
	closed atomic.Bool
}

func (f *fakeModule) Close() error {
	f.closed.Store(true)
	return nil
}

// countingLoader returns a loader that hands out fresh fake modules and
// counts how often it ran.
type countingLoader struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingLoader) load(ctx context.Context) (*fakeModule, error) {
	n := c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &fakeModule{id: int(n)}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
