// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a feed that has been closed.
var ErrClosed = errors.New("feed: closed")

// ErrNotConnected is returned when a networked feed has no live
// connection to send a request on.
var ErrNotConnected = errors.New("feed: not connected")

// RemoteError is a refusal reported by the feed itself, as opposed to
// a transport failure. Use errors.As to inspect it:
//
//	var remote *feed.RemoteError
//	if errors.As(err, &remote) && remote.Code == feed.CodePermissionDenied { ... }
type RemoteError struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("feed: %s: %s", e.Code, e.Message)
}

// Codes carried by RemoteError.
const (
	CodePermissionDenied = "permission_denied"
	CodeInvalid          = "invalid"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// IsRemoteError reports whether err is a *RemoteError with the given
// code.
func IsRemoteError(err error, code string) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code == code
	}
	return false
}
