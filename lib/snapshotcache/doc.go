// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshotcache keeps the last snapshot a session received for
// each path on local disk, so a client that starts without a network
// connection can show what it last knew.
//
// Each path is one file: a fixed header holding a magic number, a
// format version and a keyed BLAKE3 checksum, followed by the
// zstd-compressed CBOR encoding of the records. The checksum covers
// the uncompressed CBOR, so a truncated or altered file is reported as
// [ErrCorrupt] rather than decoded into wrong records. Files are
// replaced atomically by writing a temporary file and renaming it.
//
// [Cache] implements livesync.Cache.
package snapshotcache
