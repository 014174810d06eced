// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package wsfeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/feed/wire"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

var _ feed.Feed = (*Client)(nil)

// Backoff parameters for reconnection after the connection drops.
const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultDialTimeout    = 5 * time.Second
	defaultPingInterval   = 20 * time.Second

	sendBuffer = 256
)

// Config describes how to reach a feed service.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8470/v1/feed.
	URL string

	// Email identifies the user in the hello frame.
	Email string

	// DialTimeout bounds dialing plus the hello/welcome exchange.
	DialTimeout time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// PingInterval is how often the client pings an idle server. A
	// negative value disables pings.
	PingInterval time.Duration

	// Header is sent with the upgrade request.
	Header http.Header

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is a feed.Feed backed by one WebSocket connection to
// lifeline-feed-service. When the connection drops, every subscription
// receives an error through its listener and the client reconnects in
// the background with exponential backoff, re-subscribing each path.
// Requests made while disconnected fail with feed.ErrNotConnected.
type Client struct {
	config Config
	dialer *websocket.Dialer
	clock  clock.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu             sync.Mutex
	conn           *connection
	user           account.User
	closed         bool
	nextRequest    uint64
	waiters        map[uint64]chan reply
	subscriptions  map[*subscription]struct{}
	bySubscription map[uint64]*subscription
}

type reply struct {
	frame wire.Frame
	err   error
}

// Dial connects to the feed service and completes the hello exchange.
// Failing to connect the first time is returned; later disconnects are
// retried in the background until Close.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("wsfeed: URL is required")
	}
	if config.Email == "" {
		return nil, fmt.Errorf("wsfeed: email is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}
	if config.PingInterval == 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	clientContext, cancel := context.WithCancel(context.Background())
	client := &Client{
		config:         config,
		dialer:         &websocket.Dialer{HandshakeTimeout: config.DialTimeout},
		clock:          config.Clock,
		logger:         config.Logger.With("url", config.URL),
		ctx:            clientContext,
		cancel:         cancel,
		done:           make(chan struct{}),
		waiters:        make(map[uint64]chan reply),
		subscriptions:  make(map[*subscription]struct{}),
		bySubscription: make(map[uint64]*subscription),
	}

	conn, user, err := client.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	client.user = user
	client.conn = conn
	client.logger.Info("feed connected", "role", user.Role)

	go client.run(conn)
	return client, nil
}

// User returns the identity the server assigned in its last welcome.
func (c *Client) User() account.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe implements feed.Feed. The server answers the subscribe
// request before sending the first snapshot.
func (c *Client) Subscribe(ctx context.Context, path string, listener feed.Listener) (feed.Subscription, error) {
	path = feed.CleanPath(path)
	sub := &subscription{client: c, path: path, relay: feed.NewRelay(listener)}

	_, err := c.request(ctx, wire.Frame{Type: wire.TypeSubscribe, Path: path}, func(requestID uint64) {
		sub.serverID = requestID
		c.bySubscription[requestID] = sub
	})
	if err != nil {
		c.mu.Lock()
		if c.bySubscription[sub.serverID] == sub {
			delete(c.bySubscription, sub.serverID)
		}
		c.mu.Unlock()
		sub.relay.Stop()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		sub.relay.Stop()
		return nil, feed.ErrClosed
	}
	c.subscriptions[sub] = struct{}{}
	if c.bySubscription[sub.serverID] != sub && c.conn != nil {
		// The connection was replaced between the ack and now.
		if data := c.resubscribeLocked(sub); data != nil {
			c.conn.trySend(data)
		}
	}
	return sub, nil
}

// Write implements feed.Feed.
func (c *Client) Write(ctx context.Context, path, id string, fields record.Fields) error {
	_, err := c.request(ctx, wire.Frame{
		Type:   wire.TypeWrite,
		Path:   feed.CleanPath(path),
		ID:     id,
		Fields: map[string]any(fields.Clone()),
	}, nil)
	return err
}

// Delete implements feed.Feed.
func (c *Client) Delete(ctx context.Context, path, id string) error {
	_, err := c.request(ctx, wire.Frame{Type: wire.TypeDelete, Path: feed.CleanPath(path), ID: id}, nil)
	return err
}

// Ping sends a ping and waits for the pong.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, wire.Frame{Type: wire.TypePing}, nil)
	return err
}

// Close shuts the connection and stops reconnecting. Subscriptions
// stop delivering. Safe to call multiple times.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		subscriptions := make([]*subscription, 0, len(c.subscriptions))
		for sub := range c.subscriptions {
			subscriptions = append(subscriptions, sub)
		}
		c.mu.Unlock()

		c.cancel()
		<-c.done
		for _, sub := range subscriptions {
			sub.relay.Stop()
		}
		c.logger.Info("feed closed")
	})
	return nil
}

// request sends frame with a fresh request ID and waits for its
// answer. register, when set, runs under the client lock with the
// assigned ID before the frame is sent, so state the answer depends on
// is in place before the reader can see it.
func (c *Client) request(ctx context.Context, frame wire.Frame, register func(requestID uint64)) (wire.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.Frame{}, feed.ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return wire.Frame{}, feed.ErrNotConnected
	}
	c.nextRequest++
	frame.RequestID = c.nextRequest
	waiter := make(chan reply, 1)
	c.waiters[frame.RequestID] = waiter
	if register != nil {
		register(frame.RequestID)
	}
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.waiters, frame.RequestID)
		c.mu.Unlock()
	}

	data, err := wire.Encode(frame)
	if err != nil {
		forget()
		return wire.Frame{}, err
	}
	if err := conn.enqueue(ctx, data); err != nil {
		forget()
		return wire.Frame{}, err
	}

	select {
	case answer := <-waiter:
		if answer.err != nil {
			return wire.Frame{}, answer.err
		}
		if answer.frame.Type == wire.TypeNack {
			return answer.frame, answer.frame.Error
		}
		return answer.frame, nil
	case <-ctx.Done():
		forget()
		return wire.Frame{}, ctx.Err()
	}
}

// run owns the connection lifecycle until Close.
func (c *Client) run(conn *connection) {
	defer close(c.done)
	for {
		err := c.serve(conn)
		c.disconnected(err)
		if c.ctx.Err() != nil {
			return
		}
		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

// reconnect dials with exponential backoff. Returns nil once the
// client is closed.
func (c *Client) reconnect() *connection {
	backoff := c.config.InitialBackoff
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-c.clock.After(backoff):
		}

		conn, user, err := c.connect(c.ctx)
		if err == nil {
			c.mu.Lock()
			c.user = user
			c.mu.Unlock()
			c.logger.Info("feed reconnected")
			return conn
		}
		if c.ctx.Err() != nil {
			return nil
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
		c.logger.Warn("feed reconnect failed", "error", err, "backoff", backoff)
	}
}

// connect dials the server and performs the hello exchange.
func (c *Client) connect(ctx context.Context) (*connection, account.User, error) {
	dialContext, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(dialContext, c.config.URL, c.config.Header)
	if err != nil {
		return nil, account.User{}, fmt.Errorf("dialing %s: %w", c.config.URL, err)
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	hello, err := wire.Encode(wire.Frame{Type: wire.TypeHello, Version: wire.Version, Email: c.config.Email})
	if err != nil {
		return nil, account.User{}, err
	}
	deadline := time.Now().Add(c.config.DialTimeout)
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		return nil, account.User{}, fmt.Errorf("sending hello: %w", err)
	}
	ws.SetReadDeadline(deadline)
	_, message, err := ws.ReadMessage()
	if err != nil {
		return nil, account.User{}, fmt.Errorf("reading welcome: %w", err)
	}
	welcome, err := wire.Decode(message)
	if err != nil {
		return nil, account.User{}, err
	}
	switch welcome.Type {
	case wire.TypeWelcome:
	case wire.TypeError:
		return nil, account.User{}, welcome.Error
	default:
		return nil, account.User{}, fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	ws.SetWriteDeadline(time.Time{})
	ws.SetReadDeadline(time.Time{})

	success = true
	return newConnection(ws), *welcome.User, nil
}

// serve runs one connection until it fails or the client closes. The
// reader, the writer and the closer share an errgroup: whichever ends
// first cancels the others.
func (c *Client) serve(conn *connection) error {
	group, groupContext := errgroup.WithContext(c.ctx)

	group.Go(func() error {
		<-groupContext.Done()
		conn.shutdown()
		return nil
	})
	group.Go(func() error { return c.writeLoop(groupContext, conn) })
	group.Go(func() error { return c.readLoop(conn) })

	for _, data := range c.attach(conn) {
		if err := conn.enqueue(groupContext, data); err != nil {
			break
		}
	}

	err := group.Wait()
	if c.ctx.Err() != nil {
		return feed.ErrClosed
	}
	return err
}

// attach makes conn current and returns the subscribe frames that
// restore every subscription on it.
func (c *Client) attach(conn *connection) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	frames := make([][]byte, 0, len(c.subscriptions))
	for sub := range c.subscriptions {
		if data := c.resubscribeLocked(sub); data != nil {
			frames = append(frames, data)
		}
	}
	return frames
}

// resubscribeLocked assigns sub a new subscription ID on the current
// connection and returns the encoded subscribe frame for the caller to
// queue.
func (c *Client) resubscribeLocked(sub *subscription) []byte {
	c.nextRequest++
	sub.serverID = c.nextRequest
	c.bySubscription[sub.serverID] = sub
	data, err := wire.Encode(wire.Frame{Type: wire.TypeSubscribe, RequestID: sub.serverID, Path: sub.path})
	if err != nil {
		c.logger.Error("encoding subscribe frame", "path", sub.path, "error", err)
		return nil
	}
	return data
}

// disconnected fails every outstanding request and tells every
// subscription that the stream broke.
func (c *Client) disconnected(cause error) {
	c.mu.Lock()
	c.conn = nil
	waiters := c.waiters
	c.waiters = make(map[uint64]chan reply)
	c.bySubscription = make(map[uint64]*subscription)
	subscriptions := make([]*subscription, 0, len(c.subscriptions))
	for sub := range c.subscriptions {
		sub.serverID = 0
		subscriptions = append(subscriptions, sub)
	}
	closing := c.closed
	c.mu.Unlock()

	failure := feed.ErrClosed
	if !closing {
		failure = fmt.Errorf("%w: %v", feed.ErrNotConnected, cause)
		c.logger.Warn("feed disconnected", "error", cause, "subscriptions", len(subscriptions))
	}
	for _, waiter := range waiters {
		waiter <- reply{err: failure}
	}
	if closing {
		return
	}
	for _, sub := range subscriptions {
		sub.relay.Fail(failure)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *connection) error {
	var pings <-chan time.Time
	if c.config.PingInterval > 0 {
		ticker := c.clock.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			conn.writeClose()
			return nil
		case data := <-conn.send:
			if err := conn.write(data); err != nil {
				return fmt.Errorf("writing frame: %w", err)
			}
		case <-pings:
			c.mu.Lock()
			c.nextRequest++
			requestID := c.nextRequest
			c.mu.Unlock()
			data, err := wire.Encode(wire.Frame{Type: wire.TypePing, RequestID: requestID})
			if err != nil {
				return err
			}
			if err := conn.write(data); err != nil {
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(conn *connection) error {
	for {
		messageType, message, err := conn.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary message", "message_type", messageType)
			continue
		}
		frame, err := wire.Decode(message)
		if err != nil {
			return err
		}
		if err := c.dispatch(conn, frame); err != nil {
			return err
		}
	}
}

// dispatch routes one frame from the server.
func (c *Client) dispatch(conn *connection, frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeSnapshot:
		c.mu.Lock()
		sub := c.bySubscription[frame.SubscriptionID]
		c.mu.Unlock()
		if sub == nil {
			c.logger.Debug("snapshot for unknown subscription", "subscription_id", frame.SubscriptionID)
			return nil
		}
		snapshot := frame.Snapshot()
		snapshot.Path = sub.path
		sub.relay.Offer(snapshot)

	case wire.TypeAck, wire.TypeNack, wire.TypePong:
		c.mu.Lock()
		waiter, ok := c.waiters[frame.RequestID]
		delete(c.waiters, frame.RequestID)
		orphan := c.bySubscription[frame.RequestID]
		if !ok && frame.Type == wire.TypeNack && orphan != nil {
			delete(c.bySubscription, frame.RequestID)
		}
		c.mu.Unlock()
		if ok {
			waiter <- reply{frame: frame}
			return nil
		}
		// A re-subscribe the server refused.
		if frame.Type == wire.TypeNack && orphan != nil {
			c.logger.Warn("resubscribe refused", "path", orphan.path, "error", frame.Error)
			orphan.relay.Fail(frame.Error)
		}

	case wire.TypePing:
		data, err := wire.Encode(wire.Frame{Type: wire.TypePong, RequestID: frame.RequestID})
		if err != nil {
			return err
		}
		conn.trySend(data)

	case wire.TypeError:
		return frame.Error

	default:
		c.logger.Debug("unknown frame type", "type", frame.Type)
	}
	return nil
}

// subscription is one path's listener on the client.
type subscription struct {
	client *Client
	path   string
	relay  *feed.Relay

	// serverID is the subscription ID on the current connection, or
	// zero while disconnected. Guarded by client.mu.
	serverID uint64
	once     sync.Once
}

// Unsubscribe implements feed.Subscription.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		c := s.client
		c.mu.Lock()
		delete(c.subscriptions, s)
		serverID := s.serverID
		if c.bySubscription[serverID] == s {
			delete(c.bySubscription, serverID)
		}
		conn := c.conn
		c.mu.Unlock()

		s.relay.Stop()
		if conn == nil || serverID == 0 {
			return
		}
		data, err := wire.Encode(wire.Frame{Type: wire.TypeUnsubscribe, SubscriptionID: serverID})
		if err == nil {
			conn.trySend(data)
		}
	})
}

// connection is one WebSocket plus its outbound queue. Only the write
// loop writes to ws.
type connection struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue queues data for the write loop.
func (c *connection) enqueue(ctx context.Context, data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return feed.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend queues data unless the queue is full or the connection is
// gone.
func (c *connection) trySend(data []byte) {
	select {
	case c.send <- data:
	case <-c.closed:
	default:
	}
}

func (c *connection) write(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(defaultDialTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *connection) writeClose() {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}
