// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package livesync binds a collection store to one feed subscription
// and mediates every local mutation of it.
//
// A [Session] subscribes to a path and replaces its store wholesale on
// every snapshot the feed delivers. [Session.Create] and
// [Session.Delete] change the store immediately and then ask the feed
// to make the same change; the feed's answer either confirms the local
// state or rolls it back.
//
// Each record ID moves through
//
//	Absent → PendingCreate → Present → PendingDelete → Absent
//
// and at most one mutation per ID is in flight. A second mutation for
// an ID with one pending fails with [*ConflictError] before anything
// is sent. Snapshots never overwrite a pending ID: a pending create
// stays visible while snapshots that predate it arrive, and a pending
// delete stays hidden while snapshots still contain it. A snapshot
// containing a pending create's ID confirms it.
//
// Every pending mutation has a deadline on the session's clock. A
// mutation the feed has not answered by then is rolled back and
// reported as [*WriteRejected] with [ReasonTimeout]; a late answer is
// ignored. After [Session.Close], snapshots and answers are dropped.
//
// Errors from the feed arrive after Create or Delete has returned, so
// they are delivered to [Options.OnError] and logged. Validation and
// conflict errors are returned synchronously and never reach the feed.
//
// [Scope] and [With] tie sessions to the lifetime of a screen so that
// every exit path closes them.
package livesync
