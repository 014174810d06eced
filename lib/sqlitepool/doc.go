// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases the way Lifeline's
// services use them: a zombiezen.com/go/sqlite connection pool where
// every connection gets the same pragmas before first use.
//
// Pragmas applied to each connection:
//
//   - journal_mode=WAL so readers never block the single writer
//   - synchronous=NORMAL: commits survive a process crash
//   - busy_timeout=5000 to wait for the write lock
//   - cache_size=-8192 (8 MB page cache)
//   - temp_store=MEMORY
//
// The package stays thin. Callers write SQL against the zombiezen
// types directly, run statements with sqlitex.Execute and group writes
// with sqlitex.ImmediateTransaction. [Pool.With] is the usual entry
// point:
//
//	err := pool.With(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "DELETE FROM records WHERE path = ?",
//	        &sqlitex.ExecOptions{Args: []any{path}})
//	})
package sqlitepool
