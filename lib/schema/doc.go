// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema describes the collections Lifeline syncs: where each
// lives on the feed, which fields its records carry, which field a
// search box matches against, and which roles may view, create or
// delete its records.
//
// Record fields travel as untyped maps. Validation decodes them into
// the collection's content struct and checks it with
// go-playground/validator, so every required field is present and
// well-formed before a create reaches the store or the wire. A failed
// check returns a [*ValidationError] listing every problem at once.
package schema
