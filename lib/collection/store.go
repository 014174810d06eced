// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Snapshot is an immutable view of a Store at one revision. Records
// and their field maps are shared with the store and with later
// snapshots; treat them as read-only.
type Snapshot struct {
	revision uint64
	records  []record.Record
	index    map[string]int
}

// Revision increases with every write to the store.
func (s Snapshot) Revision() uint64 { return s.revision }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// Records returns the records in store order. The slice is a copy.
func (s Snapshot) Records() []record.Record { return slices.Clone(s.records) }

// Get returns the record with the given ID.
func (s Snapshot) Get(id string) (record.Record, bool) {
	position, ok := s.index[id]
	if !ok {
		return record.Record{}, false
	}
	return s.records[position], true
}

// Position returns the index of id in store order, or -1.
func (s Snapshot) Position(id string) int {
	position, ok := s.index[id]
	if !ok {
		return -1
	}
	return position
}

// ChangeKind says which operation produced a change.
type ChangeKind string

const (
	ChangeReplace ChangeKind = "replace"
	ChangePut     ChangeKind = "put"
	ChangeInsert  ChangeKind = "insert"
	ChangeRemove  ChangeKind = "remove"
)

// Change describes one write. ID is empty for ChangeReplace.
type Change struct {
	Revision uint64
	Kind     ChangeKind
	ID       string
}

// Store is safe for concurrent use. Writers are serialized; readers
// never wait for them.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	subscribers map[uint64]chan Change
	nextID      uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	store := &Store{subscribers: make(map[uint64]chan Change)}
	store.current.Store(&Snapshot{index: map[string]int{}})
	return store
}

// Snapshot returns the current contents.
func (s *Store) Snapshot() Snapshot { return *s.current.Load() }

// Get returns the current record with the given ID.
func (s *Store) Get(id string) (record.Record, bool) { return s.Snapshot().Get(id) }

// Len returns the current number of records.
func (s *Store) Len() int { return s.Snapshot().Len() }

// ReplaceAll swaps the entire contents for records, in the given
// order. When an ID appears more than once the last value wins at the
// first position.
func (s *Store) ReplaceAll(records []record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]record.Record, 0, len(records))
	index := make(map[string]int, len(records))
	for _, incoming := range records {
		if position, seen := index[incoming.ID]; seen {
			next[position] = incoming.Clone()
			continue
		}
		index[incoming.ID] = len(next)
		next = append(next, incoming.Clone())
	}
	s.publishLocked(next, index, ChangeReplace, "")
}

// Put adds r at the end, or replaces the record with the same ID in
// place.
func (s *Store) Put(r record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.current.Load()
	next := slices.Clone(previous.records)
	if position, exists := previous.index[r.ID]; exists {
		next[position] = r.Clone()
		s.publishLocked(next, previous.index, ChangePut, r.ID)
		return
	}
	next = append(next, r.Clone())
	s.publishLocked(next, nil, ChangePut, r.ID)
}

// Insert places r at position, clamped to the current length. If r's
// ID is already present the record is replaced where it is.
func (s *Store) Insert(position int, r record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.current.Load()
	if existing, exists := previous.index[r.ID]; exists {
		next := slices.Clone(previous.records)
		next[existing] = r.Clone()
		s.publishLocked(next, previous.index, ChangeInsert, r.ID)
		return
	}
	position = max(0, min(position, len(previous.records)))
	next := slices.Insert(slices.Clone(previous.records), position, r.Clone())
	s.publishLocked(next, nil, ChangeInsert, r.ID)
}

// Remove deletes the record with the given ID and returns it. Nothing
// is published when the ID is absent.
func (s *Store) Remove(id string) (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.current.Load()
	position, exists := previous.index[id]
	if !exists {
		return record.Record{}, false
	}
	removed := previous.records[position]
	next := slices.Delete(slices.Clone(previous.records), position, position+1)
	s.publishLocked(next, nil, ChangeRemove, id)
	return removed, true
}

// Subscribe returns a channel of changes and a function that ends the
// subscription. The channel holds one change; a subscriber that falls
// behind sees only the newest, which is enough to re-read the
// snapshot.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	channel := make(chan Change, 1)
	s.subscribers[id] = channel

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// publishLocked swaps in a new snapshot and notifies subscribers. A
// nil index is rebuilt from records.
func (s *Store) publishLocked(records []record.Record, index map[string]int, kind ChangeKind, id string) {
	if index == nil {
		index = make(map[string]int, len(records))
		for position, stored := range records {
			index[stored.ID] = position
		}
	}
	revision := s.current.Load().revision + 1
	s.current.Store(&Snapshot{revision: revision, records: records, index: index})

	change := Change{Revision: revision, Kind: kind, ID: id}
	for _, subscriber := range s.subscribers {
		select {
		case subscriber <- change:
			continue
		default:
		}
		// Full: replace the stale change with this one.
		select {
		case <-subscriber:
		default:
		}
		select {
		case subscriber <- change:
		default:
		}
	}
}
