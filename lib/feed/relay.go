// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"sync"
	"sync/atomic"
)

// Relay delivers a listener's events on its own goroutine. Queued
// errors are kept in order, but only the newest undelivered snapshot
// is kept, so a slow listener skips to the latest state instead of
// falling behind. Feed implementations give every subscription one
// Relay.
type Relay struct {
	listener Listener

	mu      sync.Mutex
	queue   []relayEvent
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

type relayEvent struct {
	snapshot *Snapshot
	err      error
}

// NewRelay starts the delivery goroutine for listener.
func NewRelay(listener Listener) *Relay {
	relay := &Relay{
		listener: listener,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go relay.run()
	return relay
}

// Offer queues snapshot, replacing any snapshot not yet delivered.
func (r *Relay) Offer(snapshot Snapshot) {
	r.mu.Lock()
	kept := r.queue[:0]
	for _, event := range r.queue {
		if event.snapshot == nil {
			kept = append(kept, event)
		}
	}
	r.queue = append(kept, relayEvent{snapshot: &snapshot})
	r.mu.Unlock()
	r.signal()
}

// Fail queues err for the listener's OnError.
func (r *Relay) Fail(err error) {
	if r.listener.OnError == nil {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, relayEvent{err: err})
	r.mu.Unlock()
	r.signal()
}

// Stop ends delivery. Events still queued are discarded; a callback
// already running finishes. Safe to call from inside a callback.
func (r *Relay) Stop() {
	r.once.Do(func() {
		r.stopped.Store(true)
		close(r.done)
	})
}

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}
		r.mu.Lock()
		events := r.queue
		r.queue = nil
		r.mu.Unlock()
		for _, event := range events {
			if r.stopped.Load() {
				return
			}
			if event.snapshot != nil {
				if r.listener.OnSnapshot != nil {
					r.listener.OnSnapshot(*event.snapshot)
				}
				continue
			}
			r.listener.OnError(event.err)
		}
	}
}
