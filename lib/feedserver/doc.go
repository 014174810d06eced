// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package feedserver serves Lifeline collections over WebSockets.
//
// A connection opens with a hello frame naming the user's email; the
// server answers with a welcome carrying the user and the role the
// account directory assigns. After that the client may subscribe to
// collection paths, write and delete records, and ping. Every request
// is checked against the collection's role rules and content schema
// before it reaches the [Backend].
//
// Each committed change sends a full snapshot of the changed path to
// every subscriber. Snapshots are latest-only per subscription: a slow
// client that falls behind receives the newest state and skips the
// intermediate ones. Commits are serialized, so no subscriber ever
// receives an older snapshot after a newer one.
//
// Writes and deletes are rate limited per connection with
// golang.org/x/time/rate. When [Config.Metrics] is set the server
// reports connections, subscriptions, frames, rejections and commit
// latency to Prometheus.
package feedserver
