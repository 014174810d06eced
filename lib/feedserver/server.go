// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/feed/wire"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

const defaultHandshakeTimeout = 10 * time.Second

// Backend stores the collections the server serves.
type Backend interface {
	// Records returns every record under path sorted by ID.
	Records(ctx context.Context, path string) ([]record.Record, error)

	// Put stores fields under path/id.
	Put(ctx context.Context, path, id string, fields record.Fields) error

	// Delete removes path/id and reports whether it existed.
	Delete(ctx context.Context, path, id string) (bool, error)
}

// Config holds the parameters for a Server. Backend and Directory are
// required.
type Config struct {
	Backend   Backend
	Directory *account.Directory

	// WriteLimit caps writes and deletes per connection per second.
	// Zero means unlimited.
	WriteLimit rate.Limit
	WriteBurst int

	// HandshakeTimeout bounds the wait for a client's hello.
	HandshakeTimeout time.Duration

	// Metrics, when set, receives connection and request counts.
	Metrics *Metrics

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server serves the feed protocol on a WebSocket endpoint. Every
// committed write or delete sends a fresh snapshot of its path to every
// subscriber of that path.
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// publish serializes commit-and-fanout so subscribers never see
	// an older snapshot after a newer one.
	publish sync.Mutex

	mu          sync.Mutex
	closed      bool
	peers       map[*peer]struct{}
	subscribers map[string]map[subscriberKey]struct{}
	group       sync.WaitGroup
}

type subscriberKey struct {
	peer *peer
	id   uint64
}

// New checks config and returns a Server.
func New(config Config) (*Server, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("feedserver: Backend is required")
	}
	if config.Directory == nil {
		return nil, fmt.Errorf("feedserver: Directory is required")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.WriteBurst <= 0 {
		config.WriteBurst = 1
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config:      config,
		upgrader:    websocket.Upgrader{ReadBufferSize: 64 * 1024, WriteBufferSize: 64 * 1024},
		logger:      config.Logger,
		peers:       make(map[*peer]struct{}),
		subscribers: make(map[string]map[subscriberKey]struct{}),
	}, nil
}

// ServeHTTP upgrades the request and serves the connection until the
// client leaves or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.group.Add(1)
	s.mu.Unlock()
	defer s.group.Done()

	user, err := s.handshake(ws)
	if err != nil {
		s.logger.Info("handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		ws.Close()
		return
	}

	p := newPeer(s, ws, user)
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.Connections.Inc()
	}
	s.logger.Info("client connected", "email", user.Email, "role", user.Role, "remote_addr", r.RemoteAddr)

	err = p.serve(r.Context())

	s.forget(p)
	if s.config.Metrics != nil {
		s.config.Metrics.Connections.Dec()
	}
	s.logger.Info("client disconnected", "email", user.Email, "error", err)
}

// Close disconnects every client and waits for their handlers to
// return. New connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.shutdown()
	}
	s.group.Wait()
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// handshake reads the client's hello and answers welcome or error.
func (s *Server) handshake(ws *websocket.Conn) (account.User, error) {
	deadline := time.Now().Add(s.config.HandshakeTimeout)
	ws.SetReadDeadline(deadline)
	ws.SetWriteDeadline(deadline)

	_, message, err := ws.ReadMessage()
	if err != nil {
		return account.User{}, fmt.Errorf("reading hello: %w", err)
	}
	hello, err := wire.Decode(message)
	if err == nil && hello.Type != wire.TypeHello {
		err = fmt.Errorf("expected hello, got %s", hello.Type)
	}
	if err != nil {
		s.refuse(ws, feed.CodeInvalid, err.Error())
		return account.User{}, err
	}

	user, err := s.config.Directory.SignIn(hello.Email)
	if err != nil {
		s.refuse(ws, feed.CodePermissionDenied, err.Error())
		return account.User{}, err
	}

	welcome, err := wire.Encode(wire.Frame{Type: wire.TypeWelcome, Version: wire.Version, User: &user})
	if err != nil {
		return account.User{}, err
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, welcome); err != nil {
		return account.User{}, fmt.Errorf("sending welcome: %w", err)
	}
	ws.SetReadDeadline(time.Time{})
	ws.SetWriteDeadline(time.Time{})
	return user, nil
}

func (s *Server) refuse(ws *websocket.Conn, code, message string) {
	data, err := wire.Encode(wire.Frame{Type: wire.TypeError, Error: &feed.RemoteError{Code: code, Message: message}})
	if err != nil {
		return
	}
	ws.WriteMessage(websocket.BinaryMessage, data)
}

// subscribe registers (p, id) on path and queues the current snapshot.
func (s *Server) subscribe(ctx context.Context, p *peer, id uint64, path string) error {
	s.publish.Lock()
	defer s.publish.Unlock()

	records, err := s.config.Backend.Records(ctx, path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.subscribers[path] == nil {
		s.subscribers[path] = make(map[subscriberKey]struct{})
	}
	s.subscribers[path][subscriberKey{peer: p, id: id}] = struct{}{}
	s.mu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.Subscriptions.Inc()
	}

	p.offer(id, wire.SnapshotFrame(id, path, records))
	s.countSnapshots(1)
	return nil
}

func (s *Server) unsubscribe(p *peer, id uint64, path string) {
	s.mu.Lock()
	key := subscriberKey{peer: p, id: id}
	_, existed := s.subscribers[path][key]
	delete(s.subscribers[path], key)
	if len(s.subscribers[path]) == 0 {
		delete(s.subscribers, path)
	}
	s.mu.Unlock()
	if existed && s.config.Metrics != nil {
		s.config.Metrics.Subscriptions.Dec()
	}
}

// commit applies change to the backend and fans out the new snapshot
// of path.
func (s *Server) commit(ctx context.Context, path string, change func(context.Context) error) error {
	start := s.config.Clock.Now()
	s.publish.Lock()
	defer s.publish.Unlock()

	if err := change(ctx); err != nil {
		return err
	}
	records, err := s.config.Backend.Records(ctx, path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	keys := make([]subscriberKey, 0, len(s.subscribers[path]))
	for key := range s.subscribers[path] {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		key.peer.offer(key.id, wire.SnapshotFrame(key.id, path, records))
	}
	s.countSnapshots(len(keys))
	if s.config.Metrics != nil {
		s.config.Metrics.WriteLatency.Observe(s.config.Clock.Now().Sub(start).Seconds())
	}
	return nil
}

// forget drops every subscription p holds.
func (s *Server) forget(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	removed := 0
	for path, keys := range s.subscribers {
		for key := range keys {
			if key.peer == p {
				delete(keys, key)
				removed++
			}
		}
		if len(keys) == 0 {
			delete(s.subscribers, path)
		}
	}
	s.mu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.Subscriptions.Sub(float64(removed))
	}
}

func (s *Server) countSnapshots(n int) {
	if s.config.Metrics != nil && n > 0 {
		s.config.Metrics.Snapshots.Add(float64(n))
	}
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.config.WriteLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(s.config.WriteLimit, s.config.WriteBurst)
}

// authorize checks user against the rules of the collection at path.
func authorize(user account.User, path string, action schema.Action) (schema.Collection, *feed.RemoteError) {
	collection, ok := schema.Lookup(path)
	if !ok {
		return schema.Collection{}, &feed.RemoteError{Code: feed.CodeInvalid, Message: fmt.Sprintf("unknown collection %q", path)}
	}
	if !collection.Allows(user.Role, action) {
		return collection, &feed.RemoteError{
			Code:    feed.CodePermissionDenied,
			Message: fmt.Sprintf("%s may not %s %s", user.Role, action, collection.Name),
		}
	}
	return collection, nil
}
