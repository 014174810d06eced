// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package livesync

import (
	"context"
	"errors"
	"sync"

	"github.com/lifeline-foundation/lifeline/lib/feed"
)

// Scope owns the sessions a screen opens. Closing the scope closes
// every session opened through it.
type Scope struct {
	feed feed.Feed

	mu       sync.Mutex
	closed   bool
	sessions []*Session
}

// NewScope returns a scope that opens sessions on source.
func NewScope(source feed.Feed) *Scope {
	return &Scope{feed: source}
}

// Open opens a session on path and registers it with the scope. It
// fails with ErrClosed once the scope is closed.
func (s *Scope) Open(ctx context.Context, path string, options Options) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	session, err := Open(ctx, s.feed, path, options)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		session.Close()
		return nil, ErrClosed
	}
	s.sessions = append(s.sessions, session)
	return session, nil
}

// Len returns the number of sessions the scope holds.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes every session in the scope. Later calls do nothing.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// With opens a session on path, runs fn with it, and closes it however
// fn returns, including by panic.
func With(ctx context.Context, source feed.Feed, path string, options Options, fn func(*Session) error) error {
	session, err := Open(ctx, source, path, options)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}
