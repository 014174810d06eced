// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP scaffolding lifeline-feed-service
// runs on: a server that binds a TCP listener, reports readiness, and
// shuts down gracefully when its context is cancelled.
//
// Services compose it in their own main() rather than subclassing a
// framework. Routing belongs to the caller; the feed endpoint, metrics
// and health checks are mounted on an ordinary http.ServeMux.
package service
