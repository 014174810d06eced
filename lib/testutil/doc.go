// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by Lifeline's tests:
// channel receive/close assertions with a hang guard, unique names,
// and a logger that writes through t.Log.
package testutil
