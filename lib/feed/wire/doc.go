// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the frames lifeline-feed-service and its
// clients exchange over a WebSocket. Each binary message is one CBOR
// [Frame] encoded through lib/codec.
//
// A connection starts with hello → welcome, which tells the client the
// role the server assigned to its email. After that the client sends
// subscribe, write and delete requests with increasing request IDs and
// the server answers each with ack or nack. A subscription's ID is the
// request ID of the subscribe that opened it; every snapshot frame
// names it. Either side may ping; the other answers pong with the same
// request ID.
package wire
