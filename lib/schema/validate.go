// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lifeline-foundation/lifeline/lib/codec"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	instance := validator.New(validator.WithRequiredStructEnabled())
	// Report problems by wire name ("location.latitude"), not Go name.
	instance.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return instance
}

// Problem is one reason a field set was rejected.
type Problem struct {
	// Field is the dotted path of the offending field.
	Field string

	// Rule is the check that failed: a validator tag such as
	// "required" or "email", "unknown" for a field the collection does
	// not define, or "type" for a value of the wrong shape.
	Rule string
}

func (p Problem) String() string {
	return p.Field + " (" + p.Rule + ")"
}

// ValidationError reports caller-supplied fields that a collection
// does not accept. Nothing was written when it is returned.
type ValidationError struct {
	Collection string
	Problems   []Problem

	// Err is the decode failure when the fields could not be shaped
	// into the collection's content type at all.
	Err error
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 && e.Err != nil {
		return fmt.Sprintf("%s: invalid fields: %v", e.Collection, e.Err)
	}
	problems := make([]string, len(e.Problems))
	for i, problem := range e.Problems {
		problems[i] = problem.String()
	}
	return fmt.Sprintf("%s: invalid fields: %s", e.Collection, strings.Join(problems, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// check decodes fields into content and runs the struct validator over
// it. Top-level keys outside known are reported as unknown.
func check(collection string, fields record.Fields, known []string, content any) error {
	failure := &ValidationError{Collection: collection}

	for key := range fields {
		if !slices.Contains(known, key) {
			failure.Problems = append(failure.Problems, Problem{Field: key, Rule: "unknown"})
		}
	}

	data, err := codec.Marshal(map[string]any(fields))
	if err != nil {
		failure.Err = fmt.Errorf("encoding fields: %w", err)
		return failure
	}
	if err := codec.Unmarshal(data, content); err != nil {
		failure.Problems = append(failure.Problems, Problem{Field: "fields", Rule: "type"})
		failure.Err = err
		return failure
	}

	if err := validate.Struct(content); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			failure.Err = err
			return failure
		}
		for _, fieldError := range fieldErrors {
			failure.Problems = append(failure.Problems, Problem{
				Field: wirePath(fieldError.Namespace()),
				Rule:  fieldError.Tag(),
			})
		}
	}

	if len(failure.Problems) == 0 && failure.Err == nil {
		return nil
	}
	sort.Slice(failure.Problems, func(i, j int) bool {
		return failure.Problems[i].Field < failure.Problems[j].Field
	})
	return failure
}

// wirePath drops the struct type name the validator prefixes to every
// namespace ("AlertContent.location.latitude" → "location.latitude").
func wirePath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}
