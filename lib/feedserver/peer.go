// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/feed/wire"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

const (
	peerSendBuffer = 256
	writeTimeout   = 10 * time.Second
)

// peer is one connected client. The read loop handles requests in
// order; the write loop owns every write to ws.
type peer struct {
	server  *Server
	ws      *websocket.Conn
	user    account.User
	limiter *rate.Limiter

	send   chan []byte
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once

	// paths maps subscription IDs to paths. Only the read loop
	// touches it.
	paths map[uint64]string

	// snapshots holds the newest undelivered snapshot per
	// subscription.
	mu        sync.Mutex
	snapshots map[uint64]wire.Frame
}

func newPeer(server *Server, ws *websocket.Conn, user account.User) *peer {
	return &peer{
		server:    server,
		ws:        ws,
		user:      user,
		limiter:   server.newLimiter(),
		send:      make(chan []byte, peerSendBuffer),
		wake:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
		paths:     make(map[uint64]string),
		snapshots: make(map[uint64]wire.Frame),
	}
}

// serve runs the peer until the connection ends. Reader, writer and
// closer share an errgroup so that any one ending stops the others.
func (p *peer) serve(ctx context.Context) error {
	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case <-groupContext.Done():
		case <-p.closed:
		}
		p.shutdown()
		return nil
	})
	group.Go(func() error { return p.writeLoop(groupContext) })
	group.Go(func() error { return p.readLoop(groupContext) })
	err := group.Wait()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (p *peer) shutdown() {
	p.once.Do(func() {
		close(p.closed)
		p.ws.Close()
	})
}

// offer queues a snapshot for subscription id, replacing one not yet
// sent.
func (p *peer) offer(id uint64, frame wire.Frame) {
	p.mu.Lock()
	p.snapshots[id] = frame
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *peer) enqueue(frame wire.Frame) {
	data, err := wire.Encode(frame)
	if err != nil {
		p.server.logger.Error("encoding frame", "type", frame.Type, "error", err)
		return
	}
	select {
	case p.send <- data:
	case <-p.closed:
	}
}

func (p *peer) ack(requestID uint64) {
	p.enqueue(wire.Frame{Type: wire.TypeAck, RequestID: requestID})
}

func (p *peer) nack(requestID uint64, remote *feed.RemoteError) {
	if metrics := p.server.config.Metrics; metrics != nil {
		metrics.Rejections.WithLabelValues(remote.Code).Inc()
	}
	p.server.logger.Debug("request refused",
		"email", p.user.Email,
		"request_id", requestID,
		"code", remote.Code,
		"message", remote.Message,
	)
	p.enqueue(wire.Nack(requestID, remote.Code, remote.Message))
}

func (p *peer) readLoop(ctx context.Context) error {
	for {
		messageType, message, err := p.ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		frame, err := wire.Decode(message)
		if err != nil {
			p.enqueue(wire.Frame{Type: wire.TypeError, Error: &feed.RemoteError{Code: feed.CodeInvalid, Message: err.Error()}})
			return err
		}
		if metrics := p.server.config.Metrics; metrics != nil {
			metrics.Frames.WithLabelValues(string(frame.Type)).Inc()
		}
		p.handle(ctx, frame)
	}
}

// handle answers one request.
func (p *peer) handle(ctx context.Context, frame wire.Frame) {
	switch frame.Type {
	case wire.TypeSubscribe:
		p.handleSubscribe(ctx, frame)

	case wire.TypeUnsubscribe:
		path, ok := p.paths[frame.SubscriptionID]
		if !ok {
			return
		}
		delete(p.paths, frame.SubscriptionID)
		p.server.unsubscribe(p, frame.SubscriptionID, path)
		p.mu.Lock()
		delete(p.snapshots, frame.SubscriptionID)
		p.mu.Unlock()

	case wire.TypeWrite:
		p.handleWrite(ctx, frame)

	case wire.TypeDelete:
		p.handleDelete(ctx, frame)

	case wire.TypePing:
		p.enqueue(wire.Frame{Type: wire.TypePong, RequestID: frame.RequestID})

	case wire.TypePong:

	default:
		if frame.RequestID != 0 {
			p.nack(frame.RequestID, &feed.RemoteError{
				Code:    feed.CodeInvalid,
				Message: fmt.Sprintf("unsupported frame type %q", frame.Type),
			})
		}
	}
}

func (p *peer) handleSubscribe(ctx context.Context, frame wire.Frame) {
	path := feed.CleanPath(frame.Path)
	if _, remote := authorize(p.user, path, schema.ActionView); remote != nil {
		p.nack(frame.RequestID, remote)
		return
	}
	if _, exists := p.paths[frame.RequestID]; exists {
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInvalid, Message: "subscription id in use"})
		return
	}
	if err := p.server.subscribe(ctx, p, frame.RequestID, path); err != nil {
		p.server.logger.Error("subscribe failed", "path", path, "error", err)
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInternal, Message: "reading collection failed"})
		return
	}
	p.paths[frame.RequestID] = path
	p.ack(frame.RequestID)
}

func (p *peer) handleWrite(ctx context.Context, frame wire.Frame) {
	if !p.limiter.Allow() {
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeRateLimited, Message: "too many writes"})
		return
	}
	path := feed.CleanPath(frame.Path)
	collection, remote := authorize(p.user, path, schema.ActionCreate)
	if remote != nil {
		p.nack(frame.RequestID, remote)
		return
	}
	if !record.ValidID(frame.ID) {
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInvalid, Message: fmt.Sprintf("invalid record id %q", frame.ID)})
		return
	}
	fields := record.Fields(frame.Fields)
	if err := collection.Validate(fields); err != nil {
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInvalid, Message: err.Error()})
		return
	}

	err := p.server.commit(ctx, path, func(ctx context.Context) error {
		return p.server.config.Backend.Put(ctx, path, frame.ID, fields)
	})
	if err != nil {
		p.server.logger.Error("write failed", "path", path, "record_id", frame.ID, "error", err)
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInternal, Message: "write failed"})
		return
	}
	p.server.logger.Debug("record written", "path", path, "record_id", frame.ID, "email", p.user.Email)
	p.ack(frame.RequestID)
}

func (p *peer) handleDelete(ctx context.Context, frame wire.Frame) {
	if !p.limiter.Allow() {
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeRateLimited, Message: "too many writes"})
		return
	}
	path := feed.CleanPath(frame.Path)
	if _, remote := authorize(p.user, path, schema.ActionDelete); remote != nil {
		p.nack(frame.RequestID, remote)
		return
	}

	err := p.server.commit(ctx, path, func(ctx context.Context) error {
		_, err := p.server.config.Backend.Delete(ctx, path, frame.ID)
		return err
	})
	if err != nil {
		p.server.logger.Error("delete failed", "path", path, "record_id", frame.ID, "error", err)
		p.nack(frame.RequestID, &feed.RemoteError{Code: feed.CodeInternal, Message: "delete failed"})
		return
	}
	p.server.logger.Debug("record deleted", "path", path, "record_id", frame.ID, "email", p.user.Email)
	p.ack(frame.RequestID)
}

func (p *peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			p.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
			return nil
		case data := <-p.send:
			if err := p.write(data); err != nil {
				return err
			}
		case <-p.wake:
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
}

// flush writes queued replies first, then the pending snapshots.
func (p *peer) flush() error {
	for {
		select {
		case data := <-p.send:
			if err := p.write(data); err != nil {
				return err
			}
			continue
		default:
		}
		break
	}

	p.mu.Lock()
	pending := p.snapshots
	p.snapshots = make(map[uint64]wire.Frame)
	p.mu.Unlock()

	for _, frame := range pending {
		data, err := wire.Encode(frame)
		if err != nil {
			return err
		}
		if err := p.write(data); err != nil {
			return err
		}
	}
	return nil
}

func (p *peer) write(data []byte) error {
	p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
