// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Record is one entity in a collection. ID never changes after
// creation.
type Record struct {
	ID     string `cbor:"id" json:"id"`
	Fields Fields `cbor:"fields" json:"fields"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: r.Fields.Clone()}
}

// Equal reports whether r and other have the same ID and fields.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID && r.Fields.Equal(other.Fields)
}

// Fields is the collection-specific content of a record.
type Fields map[string]any

// Clone deep-copies nested maps and slices. A nil Fields clones to an
// empty, non-nil map.
func (f Fields) Clone() Fields {
	clone := make(Fields, len(f))
	for key, value := range f {
		clone[key] = cloneValue(value)
	}
	return clone
}

// Equal compares two field maps structurally. Numeric values compare
// by value across int and float representations, so a record that
// travelled through CBOR or JSON still equals its source.
func (f Fields) Equal(other Fields) bool {
	return valuesEqual(map[string]any(f), map[string]any(other))
}

// Lookup resolves a dotted path. It returns false when any segment is
// missing or traverses a non-map value.
func (f Fields) Lookup(path string) (any, bool) {
	var current any = map[string]any(f)
	for _, segment := range strings.Split(path, ".") {
		object, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Text renders the value at path for display and text search. Missing
// values render as the empty string.
func (f Fields) Text(path string) string {
	value, ok := f.Lookup(path)
	if !ok {
		return ""
	}
	return Format(value)
}

// Format renders a single field value as text. Floats use the fewest
// digits that round-trip; nil renders as the empty string.
func Format(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

// Set stores value at a dotted path, creating intermediate maps.
// An intermediate segment holding a non-map value is replaced.
func (f Fields) Set(path string, value any) {
	segments := strings.Split(path, ".")
	current := map[string]any(f)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asMap(current[segment])
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Fields:
		return map[string]any(typed), true
	}
	return nil, false
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for key, nested := range typed {
			clone[key] = cloneValue(nested)
		}
		return clone
	case Fields:
		return map[string]any(typed.Clone())
	case []any:
		clone := make([]any, len(typed))
		for i, nested := range typed {
			clone[i] = cloneValue(nested)
		}
		return clone
	default:
		return value
	}
}

func valuesEqual(a, b any) bool {
	if mapA, ok := asMap(a); ok {
		mapB, ok := asMap(b)
		if !ok || len(mapA) != len(mapB) {
			return false
		}
		for key, valueA := range mapA {
			valueB, present := mapB[key]
			if !present || !valuesEqual(valueA, valueB) {
				return false
			}
		}
		return true
	}
	if sliceA, ok := a.([]any); ok {
		sliceB, ok := b.([]any)
		if !ok || len(sliceA) != len(sliceB) {
			return false
		}
		for i := range sliceA {
			if !valuesEqual(sliceA[i], sliceB[i]) {
				return false
			}
		}
		return true
	}
	if numberA, ok := number(a); ok {
		numberB, ok := number(b)
		return ok && numberA == numberB
	}
	return reflect.DeepEqual(a, b)
}

func number(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	}
	return 0, false
}
