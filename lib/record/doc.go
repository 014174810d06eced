// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package record defines the unit every Lifeline collection holds: a
// creator-assigned ID plus a map of fields.
//
// IDs are ULIDs. They encode the creation millisecond, so sorting IDs
// sorts records by creation time, and a monotonic entropy source keeps
// IDs minted within the same millisecond distinct and ordered.
//
// Fields are JSON-shaped values (strings, numbers, bools, nested maps
// and slices). Nested values are addressed with dotted paths such as
// "location.latitude".
package record
