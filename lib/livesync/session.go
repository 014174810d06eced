// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/collection"
	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

// DefaultMutationTimeout bounds how long a create or delete may wait
// for the feed before it is rolled back.
const DefaultMutationTimeout = 15 * time.Second

// Cache persists the last snapshot of a path between runs.
type Cache interface {
	// Load returns the cached records for path. found is false when
	// nothing is cached.
	Load(path string) (records []record.Record, found bool, err error)

	// Save replaces the cached records for path.
	Save(path string, records []record.Record) error
}

// Options configures a Session. The zero value is usable.
type Options struct {
	// Validator checks fields before Create touches the store. Nil
	// accepts any fields.
	Validator func(record.Fields) error

	// MutationTimeout is the deadline for each pending mutation. Zero
	// selects DefaultMutationTimeout; a negative value disables
	// deadlines.
	MutationTimeout time.Duration

	// Clock schedules mutation deadlines and stamps submissions.
	// Defaults to clock.Real().
	Clock clock.Clock

	// IDs mints record IDs. Defaults to a generator on Clock.
	IDs *record.IDGenerator

	// OnError receives every asynchronous error: write rejections and
	// failures of the established subscription. It is called without
	// session locks held.
	OnError func(error)

	// Cache, when set, seeds the store before the first snapshot and
	// receives every snapshot afterwards.
	Cache Cache

	Logger *slog.Logger
}

// State is the subscription phase of a session.
type State string

const (
	// StateConnecting: subscribed, no snapshot yet.
	StateConnecting State = "connecting"

	// StateCached: showing cached records, no snapshot yet.
	StateCached State = "cached"

	// StateLive: the store reflects the latest snapshot.
	StateLive State = "live"

	// StateStale: the subscription reported an error; the store holds
	// the last snapshot until the feed delivers another.
	StateStale State = "stale"

	StateClosed State = "closed"
)

// Mutation describes a pending create or delete.
type Mutation struct {
	ID          string
	Kind        MutationKind
	SubmittedAt time.Time
}

// pendingMutation is the bookkeeping behind a Mutation.
type pendingMutation struct {
	Mutation

	// seq identifies this attempt. Answers and deadlines carrying an
	// older seq for the same ID are ignored.
	seq    uint64
	timer  *clock.Timer
	ctx    context.Context
	cancel context.CancelFunc

	// Rollback state for deletes: the record as last known, where it
	// sat in the store, and whether the latest snapshot still had it.
	last      record.Record
	position  int
	remoteHas bool
}

// Session owns one subscription and the store it feeds. All methods
// are safe for concurrent use.
type Session struct {
	path    string
	feed    feed.Feed
	store   *collection.Store
	clock   clock.Clock
	ids     *record.IDGenerator
	timeout time.Duration
	options Options
	logger  *slog.Logger

	// ctx bounds every feed call the session makes; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	closed       bool
	pending      map[string]*pendingMutation
	nextSeq      uint64
	subscription feed.Subscription
	closeOnce    sync.Once

	// calls counts feed calls still running. Close waits for them.
	calls sync.WaitGroup
}

// Open subscribes to path on source and returns the session bound to
// it. A failure to establish the listener is returned as a
// *SubscriptionError; nothing is left running in that case.
func Open(ctx context.Context, source feed.Feed, path string, options Options) (*Session, error) {
	path = feed.CleanPath(path)

	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.IDs == nil {
		options.IDs = record.NewIDGenerator(options.Clock)
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	timeout := options.MutationTimeout
	if timeout == 0 {
		timeout = DefaultMutationTimeout
	}

	sessionContext, cancel := context.WithCancel(context.Background())
	session := &Session{
		path:    path,
		feed:    source,
		store:   collection.NewStore(),
		clock:   options.Clock,
		ids:     options.IDs,
		timeout: timeout,
		options: options,
		logger:  options.Logger.With("path", path),
		ctx:     sessionContext,
		cancel:  cancel,
		state:   StateConnecting,
		pending: make(map[string]*pendingMutation),
	}

	session.seedFromCache()

	subscription, err := source.Subscribe(ctx, path, feed.Listener{
		OnSnapshot: session.applySnapshot,
		OnError:    session.subscriptionFailed,
	})
	if err != nil {
		cancel()
		session.logger.Warn("subscription failed", "error", err)
		return nil, &SubscriptionError{Path: path, Err: err}
	}

	session.mu.Lock()
	session.subscription = subscription
	session.mu.Unlock()

	session.logger.Info("session opened")
	return session, nil
}

// Path returns the feed path the session is subscribed to.
func (s *Session) Path() string { return s.path }

// Snapshot returns the current store contents.
func (s *Session) Snapshot() collection.Snapshot { return s.store.Snapshot() }

// Subscribe reports store changes. See collection.Store.Subscribe.
func (s *Session) Subscribe() (<-chan collection.Change, func()) { return s.store.Subscribe() }

// State returns the subscription phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the mutation pending for id, if any.
func (s *Session) Pending(id string) (Mutation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.pending[id]
	if !ok {
		return Mutation{}, false
	}
	return pending.Mutation, true
}

// PendingMutations returns every pending mutation in submission order.
func (s *Session) PendingMutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := s.pendingInOrderLocked()
	mutations := make([]Mutation, len(ordered))
	for i, pending := range ordered {
		mutations[i] = pending.Mutation
	}
	return mutations
}

// PendingCount returns the number of pending mutations.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Create validates fields, adds them to the store under a new ID, and
// asks the feed to write them. It returns the ID as soon as the store
// holds the record. If the feed refuses, the record is removed and a
// *WriteRejected goes to Options.OnError.
func (s *Session) Create(fields record.Fields) (string, error) {
	if s.options.Validator != nil {
		if err := s.options.Validator(fields); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	id, err := s.ids.New()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	if pending, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return "", &ConflictError{ID: id, Pending: pending.Kind}
	}

	created := record.Record{ID: id, Fields: fields.Clone()}
	s.store.Put(created)
	pending := s.trackLocked(id, MutationCreate)
	s.mu.Unlock()

	s.logger.Debug("create submitted", "record_id", id)
	s.dispatch(pending, func(ctx context.Context) error {
		return s.feed.Write(ctx, s.path, id, created.Fields)
	})
	return id, nil
}

// Delete removes id from the store and asks the feed to delete it. If
// the feed refuses, the record is restored where it was and a
// *WriteRejected goes to Options.OnError. An ID with a pending
// mutation fails with *ConflictError; an ID the store does not hold
// fails with ErrNotFound.
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if pending, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return &ConflictError{ID: id, Pending: pending.Kind}
	}
	snapshot := s.store.Snapshot()
	existing, found := snapshot.Get(id)
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("deleting %s: %w", id, ErrNotFound)
	}

	s.store.Remove(id)
	pending := s.trackLocked(id, MutationDelete)
	pending.last = existing
	pending.position = snapshot.Position(id)
	pending.remoteHas = true
	s.mu.Unlock()

	s.logger.Debug("delete submitted", "record_id", id)
	s.dispatch(pending, func(ctx context.Context) error {
		return s.feed.Delete(ctx, s.path, id)
	})
	return nil
}

// Close detaches the listener and abandons pending mutations. It
// cancels every feed call the session started and returns once they
// have all returned. No store change happens after Close returns.
// Calling it again does nothing.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.state = StateClosed
		abandoned := s.pendingInOrderLocked()
		s.pending = make(map[string]*pendingMutation)
		subscription := s.subscription
		s.mu.Unlock()

		for _, pending := range abandoned {
			s.disarm(pending)
		}
		s.cancel()
		if subscription != nil {
			subscription.Unsubscribe()
		}
		s.calls.Wait()
		s.logger.Info("session closed", "abandoned_mutations", len(abandoned))
	})
	return nil
}

// trackLocked registers a pending mutation for id and arms its
// deadline. The entry's context bounds the feed call and is cancelled
// however the mutation resolves.
func (s *Session) trackLocked(id string, kind MutationKind) *pendingMutation {
	s.nextSeq++
	callContext, cancel := context.WithCancel(s.ctx)
	pending := &pendingMutation{
		Mutation: Mutation{ID: id, Kind: kind, SubmittedAt: s.clock.Now()},
		seq:      s.nextSeq,
		ctx:      callContext,
		cancel:   cancel,
	}
	s.pending[id] = pending
	// Counted under the lock so that Close, which sets closed under the
	// same lock, waits for every call it could race with.
	s.calls.Add(1)

	if s.timeout > 0 {
		seq := pending.seq
		pending.timer = s.clock.AfterFunc(s.timeout, func() {
			s.resolve(id, seq, ErrTimeout, ReasonTimeout)
		})
	}
	return pending
}

// dispatch runs call against the feed on its own goroutine and
// resolves the mutation with its result. The call was counted by
// trackLocked.
func (s *Session) dispatch(pending *pendingMutation, call func(context.Context) error) {
	id, seq, callContext := pending.ID, pending.seq, pending.ctx
	go func() {
		err := call(callContext)
		s.calls.Done()
		s.resolve(id, seq, err, ReasonRemote)
	}()
}

// resolve settles the mutation (id, seq) with err. A nil err confirms
// it; anything else rolls it back and reports a WriteRejected.
func (s *Session) resolve(id string, seq uint64, err error, reason Reason) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping answer after close", "record_id", id)
		return
	}
	pending, ok := s.pending[id]
	if !ok || pending.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.disarm(pending)

	if err == nil {
		s.mu.Unlock()
		s.logger.Debug("mutation confirmed", "record_id", id, "kind", pending.Kind)
		return
	}

	switch pending.Kind {
	case MutationCreate:
		s.store.Remove(id)
	case MutationDelete:
		if pending.remoteHas {
			s.store.Insert(pending.position, pending.last)
		}
	}
	s.mu.Unlock()

	s.report(&WriteRejected{ID: id, Kind: pending.Kind, Reason: reason, Err: err})
}

// disarm stops a pending mutation's deadline and cancels its
// feed call. Safe to call without the lock once the entry is detached
// from the pending map.
func (s *Session) disarm(pending *pendingMutation) {
	if pending.timer != nil {
		pending.timer.Stop()
	}
	if pending.cancel != nil {
		pending.cancel()
	}
}

// applySnapshot replaces the store with snapshot, keeping pending IDs
// in their pending state.
func (s *Session) applySnapshot(snapshot feed.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	current := s.store.Snapshot()
	merged := make([]record.Record, 0, len(snapshot.Records)+len(s.pending))
	delivered := make(map[string]bool, len(snapshot.Records))
	for _, incoming := range snapshot.Records {
		delivered[incoming.ID] = true
		pending := s.pending[incoming.ID]
		if pending == nil {
			merged = append(merged, incoming)
			continue
		}
		switch pending.Kind {
		case MutationDelete:
			pending.last = incoming
			pending.position = len(merged)
			pending.remoteHas = true
		case MutationCreate:
			delete(s.pending, incoming.ID)
			s.disarm(pending)
			s.logger.Debug("create confirmed by snapshot", "record_id", incoming.ID)
			merged = append(merged, incoming)
		}
	}

	for _, pending := range s.pendingInOrderLocked() {
		if delivered[pending.ID] {
			continue
		}
		switch pending.Kind {
		case MutationCreate:
			if local, ok := current.Get(pending.ID); ok {
				merged = append(merged, local)
			}
		case MutationDelete:
			pending.remoteHas = false
		}
	}

	s.store.ReplaceAll(merged)
	s.state = StateLive
	cache := s.options.Cache
	s.mu.Unlock()

	if cache != nil {
		if err := cache.Save(s.path, snapshot.Records); err != nil {
			s.logger.Warn("saving snapshot to cache failed", "error", err)
		}
	}
}

// subscriptionFailed handles an error on the established listener.
func (s *Session) subscriptionFailed(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateStale
	s.mu.Unlock()
	s.report(&SubscriptionError{Path: s.path, Err: err})
}

func (s *Session) seedFromCache() {
	if s.options.Cache == nil {
		return
	}
	records, found, err := s.options.Cache.Load(s.path)
	if err != nil {
		s.logger.Warn("loading cached snapshot failed", "error", err)
		return
	}
	if !found {
		return
	}
	s.store.ReplaceAll(records)
	s.state = StateCached
	s.logger.Info("seeded from cache", "records", len(records))
}

func (s *Session) report(err error) {
	s.logger.Warn("sync error", "error", err)
	if s.options.OnError != nil {
		s.options.OnError(err)
	}
}

func (s *Session) pendingInOrderLocked() []*pendingMutation {
	ordered := make([]*pendingMutation, 0, len(s.pending))
	for _, pending := range s.pending {
		ordered = append(ordered, pending)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}
