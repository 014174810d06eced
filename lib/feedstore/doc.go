// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package feedstore is lifeline-feed-service's durable storage: one
// SQLite table of records keyed by (path, id), with each record's
// fields stored as a CBOR blob. Reads return a path's records sorted by
// ID, the order snapshots are sent in.
package feedstore
