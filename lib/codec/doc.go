// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is Lifeline's single CBOR configuration. Feed wire
// frames and cached snapshots both go through it, so the client, the
// feed service and the on-disk cache agree on one encoding.
//
// Encoding is Core Deterministic (RFC 8949 §4.2): equal values produce
// equal bytes, which the snapshot cache relies on when it checksums a
// payload. Decoding into any yields map[string]any for maps and int64
// for integers, the same shapes record field maps use everywhere else.
//
// Struct types that only travel over CBOR use cbor tags. Types that
// are also written as JSON (record content in seed files) use json
// tags, which the encoder falls back to.
package codec
