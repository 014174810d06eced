// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package wsfeed is the network [feed.Feed]: a client for
// lifeline-feed-service speaking the frames in package wire over one
// gorilla/websocket connection.
//
// The client multiplexes every subscription and request over that
// connection. Requests carry an ID and wait for the matching ack or
// nack; a nack surfaces as a *feed.RemoteError. When the connection
// drops, outstanding requests fail with [feed.ErrNotConnected], each
// listener's OnError fires, and the client redials with exponential
// backoff. Once reconnected it re-subscribes every live subscription,
// so listeners resume receiving snapshots without doing anything.
package wsfeed
