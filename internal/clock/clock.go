// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package clock abstracts the passage of time for the readiness probe
// so that tests can drive it deterministically.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock tells the time and schedules timers.
type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
	After(time.Duration) <-chan time.Time
	WithTimeout(context.Context, time.Duration) (context.Context, context.CancelFunc)
}

// System is the default implementation of Clock based on real time.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (systemClock) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// Mock is a Clock that only moves when Add is called.
type Mock struct {
	mu  sync.RWMutex
	now time.Time

	// Waiters are resolved in chronological order
	// as Add moves the clock past them.
	waiters     []*waiter
	waiterAdded *sync.Cond
}

var _ Clock = (*Mock)(nil)

// NewMock builds a new mock clock
// using the current actual time as the initial time.
func NewMock() *Mock {
	m := &Mock{now: time.Now()}
	m.waiterAdded = sync.NewCond(&m.mu)
	return m
}

// Now reports the current time.
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Since reports the time elapsed since t.
func (c *Mock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives the clock's time
// once it has advanced by d.
func (c *Mock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.runAt(c.Now().Add(d), func() { ch <- c.Now() })
	return ch
}

// WithTimeout returns a new context with a deadline
// at the given duration from now on this clock.
//
// The context is also done when its parent is.
// Canceling it removes its deadline from the scheduled operations.
func (c *Mock) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	deadline := c.Now().Add(d)
	inner, cancelInner := context.WithCancel(ctx)
	dctx := &deadlineCtx{
		inner:       inner,
		cancelInner: cancelInner,
		done:        make(chan struct{}),
		deadline:    deadline,
	}
	unschedule := c.runAt(deadline, func() {
		dctx.cancel(context.DeadlineExceeded)
	})
	stop := context.AfterFunc(ctx, func() {
		unschedule()
		dctx.cancel(ctx.Err())
	})

	return dctx, func() {
		stop()
		unschedule()
		dctx.cancel(context.Canceled)
	}
}

type deadlineCtx struct {
	inner       context.Context
	cancelInner func()

	done     chan struct{}
	deadline time.Time

	mu  sync.Mutex // guards err; the rest is immutable
	err error
}

var _ context.Context = (*deadlineCtx)(nil)

func (c *deadlineCtx) Deadline() (deadline time.Time, ok bool) { return c.deadline, true }
func (c *deadlineCtx) Done() <-chan struct{}                   { return c.done }
func (c *deadlineCtx) Value(key any) any                       { return c.inner.Value(key) }

func (c *deadlineCtx) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *deadlineCtx) cancel(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
		close(c.done)
		c.cancelInner()
	}
	c.mu.Unlock()
}

// runAt schedules fn and returns a function that unschedules it
// if it has not run yet.
func (c *Mock) runAt(t time.Time, fn func()) (unschedule func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{until: t, fn: fn}
	c.waiters = append(c.waiters, w)
	c.waiterAdded.Broadcast()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		for i, o := range c.waiters {
			if o == w {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				return
			}
		}
	}
}

// AwaitScheduled blocks until there are at least N
// operations scheduled for the future.
func (c *Mock) AwaitScheduled(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Wait releases c.mu until runAt signals.
	for len(c.waiters) < n {
		c.waiterAdded.Wait()
	}
}

type waiter struct {
	until time.Time
	fn    func()
}

// Add moves the current time of the mock clock by the given duration,
// resolving in order every waiter that falls within range.
func (c *Mock) Add(d time.Duration) {
	if d < 0 {
		panic("cannot add negative duration")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sort.Slice(c.waiters, func(i, j int) bool {
		return c.waiters[i].until.Before(c.waiters[j].until)
	})

	// Waiters must observe the time they asked for,
	// so newTime is recorded only at the end.
	newTime := c.now.Add(d)

	for len(c.waiters) > 0 {
		w := c.waiters[0]
		if w.until.After(newTime) {
			break
		}
		c.waiters[0] = nil // avoid memory leak
		c.waiters = c.waiters[1:]

		c.now = w.until

		// The waiter may schedule more work
		// so we must release the lock.
		c.mu.Unlock()
		w.fn()
		// Let the waiter's side effects settle.
		time.Sleep(1 * time.Millisecond)
		c.mu.Lock()
	}

	c.now = newTime
}
