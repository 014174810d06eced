// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package livesync

import (
	"errors"
	"fmt"
)

// MutationKind is the kind of a pending mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationDelete MutationKind = "delete"
)

// Reason says why a write was rejected.
type Reason string

const (
	// ReasonRemote means the feed refused or failed the write.
	ReasonRemote Reason = "remote"

	// ReasonTimeout means the feed did not answer before the
	// mutation deadline.
	ReasonTimeout Reason = "timeout"
)

var (
	// ErrNotFound is returned by Delete for an ID the store does not
	// hold.
	ErrNotFound = errors.New("livesync: record not found")

	// ErrClosed is returned by operations on a closed session or
	// scope.
	ErrClosed = errors.New("livesync: session closed")

	// ErrTimeout is the cause carried by a WriteRejected with
	// ReasonTimeout.
	ErrTimeout = errors.New("livesync: mutation timed out")
)

// SubscriptionError reports that the listener for Path could not be
// established, or that an established one failed.
type SubscriptionError struct {
	Path string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("livesync: subscription to %s: %v", e.Path, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// WriteRejected reports a create or delete the feed did not accept.
// The optimistic change for ID has been rolled back.
type WriteRejected struct {
	ID     string
	Kind   MutationKind
	Reason Reason
	Err    error
}

func (e *WriteRejected) Error() string {
	return fmt.Sprintf("livesync: %s of %s rejected (%s): %v", e.Kind, e.ID, e.Reason, e.Err)
}

func (e *WriteRejected) Unwrap() error { return e.Err }

// ConflictError reports a mutation attempted on an ID that already has
// one pending.
type ConflictError struct {
	ID      string
	Pending MutationKind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("livesync: %s already has a pending %s", e.ID, e.Pending)
}

// IsSubscriptionError reports whether err is or wraps a
// SubscriptionError.
func IsSubscriptionError(err error) bool {
	var subscriptionError *SubscriptionError
	return errors.As(err, &subscriptionError)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// AsWriteRejected extracts a WriteRejected from err.
func AsWriteRejected(err error) (*WriteRejected, bool) {
	var rejected *WriteRejected
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
