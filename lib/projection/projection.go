// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package projection derives the list a screen renders from a store
// snapshot. Everything here is a pure function of its arguments: no
// I/O, no shared state, safe to call on every keystroke.
package projection

import (
	"strings"

	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Predicate selects records. A nil Predicate selects every record.
type Predicate func(record.Record) bool

// Project returns the records the predicate selects, in the order
// given. The result is a new slice even when nothing is filtered out.
func Project(records []record.Record, predicate Predicate) []record.Record {
	result := make([]record.Record, 0, len(records))
	for _, candidate := range records {
		if predicate == nil || predicate(candidate) {
			result = append(result, candidate)
		}
	}
	return result
}

// All selects every record.
func All() Predicate { return nil }

// Substring matches records where any of the given dotted field paths
// contains query, ignoring case. An empty or all-space query selects
// every record.
func Substring(query string, fields ...string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	return func(candidate record.Record) bool {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(candidate.Fields.Text(field)), needle) {
				return true
			}
		}
		return false
	}
}

// AnyField matches records where the ID or any scalar field value, at
// any depth, contains query, ignoring case.
func AnyField(query string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	return func(candidate record.Record) bool {
		if strings.Contains(strings.ToLower(candidate.ID), needle) {
			return true
		}
		return anyLeafContains(map[string]any(candidate.Fields), needle)
	}
}

// And selects records every non-nil predicate selects.
func And(predicates ...Predicate) Predicate {
	var active []Predicate
	for _, predicate := range predicates {
		if predicate != nil {
			active = append(active, predicate)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(candidate record.Record) bool {
		for _, predicate := range active {
			if !predicate(candidate) {
				return false
			}
		}
		return true
	}
}

func anyLeafContains(value any, needle string) bool {
	switch typed := value.(type) {
	case map[string]any:
		for _, nested := range typed {
			if anyLeafContains(nested, needle) {
				return true
			}
		}
		return false
	case record.Fields:
		return anyLeafContains(map[string]any(typed), needle)
	case []any:
		for _, nested := range typed {
			if anyLeafContains(nested, needle) {
				return true
			}
		}
		return false
	case nil:
		return false
	}
	return strings.Contains(strings.ToLower(record.Format(value)), needle)
}
