// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package collection is the in-memory materialization of one remote
// collection: an ordered mapping from record ID to record that a
// screen renders from.
//
// Writes build a new immutable [Snapshot] and publish it with one
// atomic pointer swap, so [Store.Snapshot] never blocks and never sees
// a half-applied write. Every write bumps the revision and notifies
// subscribers once, however many records it touched.
//
// Order is insertion order. [Store.ReplaceAll] keeps the order it is
// given, [Store.Put] appends new IDs and updates existing IDs in
// place, and [Store.Insert] places a record at a chosen position (used
// to restore a record exactly where it was).
package collection
