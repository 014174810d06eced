// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the lifeline command tree. Every command
// that reads or changes a collection signs in to the feed service
// with the configured email, opens a sync session on the collection
// and works through it, so a one-shot "create" goes through the same
// optimistic path as the interactive "watch" screen and reports the
// feed's verdict before exiting.
package commands
