// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/codec"
	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Version is the protocol version carried by hello and welcome.
const Version = 1

// Type names a frame.
type Type string

const (
	// TypeHello opens a connection: client → server, carries Email.
	TypeHello Type = "hello"

	// TypeWelcome accepts a hello: server → client, carries User.
	TypeWelcome Type = "welcome"

	// TypeSubscribe starts a subscription on Path. Its RequestID
	// becomes the subscription ID of the snapshots that follow.
	TypeSubscribe Type = "subscribe"

	// TypeSnapshot carries the full contents of Path for the
	// subscription in SubscriptionID.
	TypeSnapshot Type = "snapshot"

	// TypeUnsubscribe ends the subscription in SubscriptionID. It has
	// no reply.
	TypeUnsubscribe Type = "unsubscribe"

	// TypeWrite stores Fields under Path/ID.
	TypeWrite Type = "write"

	// TypeDelete removes Path/ID.
	TypeDelete Type = "delete"

	// TypeAck answers a subscribe, write or delete that succeeded.
	TypeAck Type = "ack"

	// TypeNack answers a request that failed; Error says why.
	TypeNack Type = "nack"

	TypePing Type = "ping"
	TypePong Type = "pong"

	// TypeError reports a connection-level failure. The sender closes
	// the connection after it.
	TypeError Type = "error"
)

// Frame is one WebSocket binary message. Which fields are meaningful
// depends on Type; unused fields are omitted on the wire.
type Frame struct {
	Type           Type              `cbor:"type"`
	Version        int               `cbor:"version,omitempty"`
	RequestID      uint64            `cbor:"request_id,omitempty"`
	SubscriptionID uint64            `cbor:"subscription_id,omitempty"`
	Path           string            `cbor:"path,omitempty"`
	ID             string            `cbor:"id,omitempty"`
	Fields         map[string]any    `cbor:"fields,omitempty"`
	Records        map[string]any    `cbor:"records,omitempty"`
	Email          string            `cbor:"email,omitempty"`
	User           *account.User     `cbor:"user,omitempty"`
	Error          *feed.RemoteError `cbor:"error,omitempty"`
}

// Encode marshals frame after checking that it is well formed.
func Encode(frame Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	data, err := codec.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", frame.Type, err)
	}
	return data, nil
}

// Decode unmarshals and checks one frame.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if err := frame.Validate(); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// Validate reports the first missing field frame.Type requires.
// Unknown types are accepted so that newer peers can add frames.
func (frame Frame) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%s frame missing %s", frame.Type, field)
	}
	switch frame.Type {
	case "":
		return fmt.Errorf("frame missing type")
	case TypeHello:
		if frame.Email == "" {
			return missing("email")
		}
	case TypeWelcome:
		if frame.User == nil {
			return missing("user")
		}
	case TypeSubscribe:
		if frame.RequestID == 0 {
			return missing("request_id")
		}
		if frame.Path == "" {
			return missing("path")
		}
	case TypeSnapshot:
		if frame.SubscriptionID == 0 {
			return missing("subscription_id")
		}
	case TypeUnsubscribe:
		if frame.SubscriptionID == 0 {
			return missing("subscription_id")
		}
	case TypeWrite, TypeDelete:
		if frame.RequestID == 0 {
			return missing("request_id")
		}
		if frame.Path == "" {
			return missing("path")
		}
		if frame.ID == "" {
			return missing("id")
		}
	case TypeAck, TypePing, TypePong:
		if frame.RequestID == 0 {
			return missing("request_id")
		}
	case TypeNack:
		if frame.RequestID == 0 {
			return missing("request_id")
		}
		if frame.Error == nil {
			return missing("error")
		}
	case TypeError:
		if frame.Error == nil {
			return missing("error")
		}
	}
	return nil
}

// Snapshot converts a snapshot frame's payload into a feed snapshot.
func (frame Frame) Snapshot() feed.Snapshot {
	return feed.SnapshotFromMap(frame.Path, frame.Records)
}

// SnapshotFrame builds the frame carrying records for a subscription.
func SnapshotFrame(subscriptionID uint64, path string, records []record.Record) Frame {
	payload := make(map[string]any, len(records))
	for _, stored := range records {
		payload[stored.ID] = map[string]any(stored.Fields)
	}
	return Frame{Type: TypeSnapshot, SubscriptionID: subscriptionID, Path: path, Records: payload}
}

// Nack builds the failure answer to request requestID.
func Nack(requestID uint64, code, message string) Frame {
	return Frame{Type: TypeNack, RequestID: requestID, Error: &feed.RemoteError{Code: code, Message: message}}
}
