// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the lifeline
// binary: a tree of [Command] values dispatched by name, pflag flag
// sets parsed lazily per command, generated help, and typo
// suggestions for unknown commands and flags.
//
// Output helpers live here too: [NewCommandLogger] picks a text or
// JSON slog handler depending on whether stderr is a terminal, and
// [WriteJSON] renders --json results.
package cli
