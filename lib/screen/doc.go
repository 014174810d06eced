// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen renders one synced collection as a bubbletea program:
// a table of records that follows the session's store, a search box
// that narrows the table on every keystroke, an entry form for new
// records, and delete with confirmation.
//
// The signed-in [account.User] and the [Theme] are passed to [New]
// explicitly. Actions the user's role may not perform on the
// collection are neither offered in the help bar nor bound to keys;
// the feed service enforces the same rules independently.
//
// Records whose create is still unconfirmed are marked in the table.
// Deletes disappear at once and reappear if the feed rejects them,
// because that is what the session's store does.
package screen
