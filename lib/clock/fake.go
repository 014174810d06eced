// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock only moves when Advance is called. AfterFunc callbacks run
// synchronously inside Advance, in deadline order, without the clock's
// lock held, so a callback may schedule further timers. A callback
// must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	nextSeq uint64
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	when time.Time
	// seq breaks deadline ties in registration order.
	seq uint64

	fire   func(now time.Time)
	period time.Duration
	done   bool
}

// Now returns the frozen time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot channel timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(d, 0, func(now time.Time) { channel <- now })
	return channel
}

// AfterFunc registers f to run during the Advance that crosses d.
// A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	timer := c.addLocked(d, 0, func(time.Time) { f() })
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.cancel(timer) }}
}

// NewTicker registers a periodic channel timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive interval")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	timer := c.addLocked(d, d, func(now time.Time) {
		select {
		case channel <- now:
		default:
		}
	})
	c.mu.Unlock()
	return &Ticker{C: channel, stop: func() { c.cancel(timer) }}
}

// Advance moves time forward by d and fires every timer whose deadline
// is reached. Tickers fire once per elapsed period.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		timer := c.popDue(target)
		if timer == nil {
			return
		}
		timer.fire(target)
	}
}

// WaitForTimers blocks until at least n timers are registered. Tests
// use it to avoid advancing before a goroutine has scheduled its
// timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) addLocked(d, period time.Duration, fire func(time.Time)) *fakeTimer {
	c.nextSeq++
	timer := &fakeTimer{when: c.now.Add(d), seq: c.nextSeq, fire: fire, period: period}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
	return timer
}

func (c *FakeClock) cancel(timer *fakeTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timer.done {
		return false
	}
	timer.done = true
	c.pending = slices.DeleteFunc(c.pending, func(candidate *fakeTimer) bool {
		return candidate == timer
	})
	return true
}

// popDue removes and returns the earliest timer due at or before
// target, rescheduling it first if it is periodic.
func (c *FakeClock) popDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := -1
	for i, timer := range c.pending {
		if timer.when.After(target) {
			continue
		}
		if index < 0 || earlier(timer, c.pending[index]) {
			index = i
		}
	}
	if index < 0 {
		return nil
	}

	timer := c.pending[index]
	if timer.period > 0 {
		due := *timer
		timer.when = timer.when.Add(timer.period)
		c.nextSeq++
		timer.seq = c.nextSeq
		return &due
	}
	timer.done = true
	c.pending = slices.Delete(c.pending, index, index+1)
	return timer
}

func earlier(a, b *fakeTimer) bool {
	if a.when.Equal(b.when) {
		return a.seq < b.seq
	}
	return a.when.Before(b.when)
}
