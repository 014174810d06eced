// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets sync sessions, feed clients and the feed service
// schedule work without touching the time package directly.
//
// Production code receives [Real]. Tests receive [Fake] and move time
// forward with [FakeClock.Advance], which makes mutation timeouts,
// reconnect backoff and heartbeats deterministic:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := openSession(t, fake)
//	session.Create(fields)
//	fake.Advance(15 * time.Second) // the create times out and rolls back
package clock
