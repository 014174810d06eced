// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/lifeline-foundation/lifeline/lib/record"
)

var _ Feed = (*Memory)(nil)

// OperationKind names a request made to a Memory feed.
type OperationKind string

const (
	OperationSubscribe OperationKind = "subscribe"
	OperationWrite     OperationKind = "write"
	OperationDelete    OperationKind = "delete"
)

// Operation is a request seen by a Memory intercept hook.
type Operation struct {
	Kind   OperationKind
	Path   string
	ID     string
	Fields record.Fields
}

// Memory is an in-process Feed. Each subscriber gets its own delivery
// goroutine holding at most one undelivered snapshot, so a slow
// listener skips to the newest state instead of queueing.
type Memory struct {
	mu          sync.Mutex
	paths       map[string]map[string]record.Fields
	subscribers map[string]map[uint64]*Relay
	nextID      uint64
	intercept   func(context.Context, Operation) error
	closed      bool
}

// NewMemory returns an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{
		paths:       make(map[string]map[string]record.Fields),
		subscribers: make(map[string]map[uint64]*Relay),
	}
}

// Intercept installs a hook consulted before every subscribe, write
// and delete. A non-nil error from the hook refuses the operation and
// is returned to the caller unchanged. The hook may block, which lets
// tests hold a write in flight. Pass nil to remove the hook.
func (m *Memory) Intercept(hook func(context.Context, Operation) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intercept = hook
}

// Seed replaces the contents of path without consulting the hook.
func (m *Memory) Seed(path string, records []record.Record) {
	path = CleanPath(path)
	m.mu.Lock()
	collection := make(map[string]record.Fields, len(records))
	for _, seeded := range records {
		collection[seeded.ID] = seeded.Fields.Clone()
	}
	m.paths[path] = collection
	m.publishLocked(path)
	m.mu.Unlock()
}

// Records returns the current contents of path sorted by ID.
func (m *Memory) Records(path string) []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(CleanPath(path)).Records
}

// Subscribe implements Feed.
func (m *Memory) Subscribe(ctx context.Context, path string, listener Listener) (Subscription, error) {
	path = CleanPath(path)
	if err := m.check(ctx, Operation{Kind: OperationSubscribe, Path: path}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	m.nextID++
	subscriber := NewRelay(listener)
	if m.subscribers[path] == nil {
		m.subscribers[path] = make(map[uint64]*Relay)
	}
	m.subscribers[path][m.nextID] = subscriber
	subscriber.Offer(m.snapshotLocked(path))

	id := m.nextID
	return memorySubscription{stop: func() {
		m.mu.Lock()
		delete(m.subscribers[path], id)
		m.mu.Unlock()
		subscriber.Stop()
	}}, nil
}

// Write implements Feed.
func (m *Memory) Write(ctx context.Context, path, id string, fields record.Fields) error {
	path = CleanPath(path)
	if !record.ValidID(id) {
		return &RemoteError{Code: CodeInvalid, Message: fmt.Sprintf("invalid record id %q", id)}
	}
	if err := m.check(ctx, Operation{Kind: OperationWrite, Path: path, ID: id, Fields: fields.Clone()}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.paths[path] == nil {
		m.paths[path] = make(map[string]record.Fields)
	}
	m.paths[path][id] = fields.Clone()
	m.publishLocked(path)
	return nil
}

// Delete implements Feed.
func (m *Memory) Delete(ctx context.Context, path, id string) error {
	path = CleanPath(path)
	if err := m.check(ctx, Operation{Kind: OperationDelete, Path: path, ID: id}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.paths[path][id]; !exists {
		return nil
	}
	delete(m.paths[path], id)
	m.publishLocked(path)
	return nil
}

// Close stops every subscriber and refuses further operations.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for path, subscribers := range m.subscribers {
		for _, subscriber := range subscribers {
			subscriber.Stop()
		}
		delete(m.subscribers, path)
	}
}

func (m *Memory) check(ctx context.Context, operation Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	hook := m.intercept
	m.mu.Unlock()
	if hook == nil {
		return nil
	}
	if err := hook(ctx, operation); err != nil {
		return err
	}
	return ctx.Err()
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	snapshot := Snapshot{Path: path, Records: make([]record.Record, 0, len(m.paths[path]))}
	for id, fields := range m.paths[path] {
		snapshot.Records = append(snapshot.Records, record.Record{ID: id, Fields: fields.Clone()})
	}
	SortRecords(snapshot.Records)
	return snapshot
}

func (m *Memory) publishLocked(path string) {
	subscribers := m.subscribers[path]
	if len(subscribers) == 0 {
		return
	}
	for _, subscriber := range subscribers {
		subscriber.Offer(m.snapshotLocked(path))
	}
}

type memorySubscription struct {
	stop func()
}

func (s memorySubscription) Unsubscribe() { s.stop() }
