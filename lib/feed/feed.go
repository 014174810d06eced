// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed defines the remote collection feed a sync session talks
// to, and an in-process implementation of it.
//
// A feed holds flat collections addressed by path. Subscribers receive
// the full contents of a path every time it changes; a newer snapshot
// always supersedes an older one, and a slow subscriber may skip
// intermediate snapshots. Writes and deletes address one record by
// path and ID and return once the feed has accepted or refused them.
//
// [Memory] keeps everything in process and is what tests and the
// offline demo use. Package wsfeed speaks to lifeline-feed-service.
package feed

import (
	"context"
	"sort"
	"strings"

	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Snapshot is the full contents of one path. Records are sorted by ID.
// An absent path yields an empty snapshot.
type Snapshot struct {
	Path    string
	Records []record.Record
}

// Listener receives a subscription's events. Callbacks for one
// subscription are never invoked concurrently.
type Listener struct {
	// OnSnapshot receives every new snapshot of the path.
	OnSnapshot func(Snapshot)

	// OnError reports that an established subscription failed. A feed
	// that reconnects keeps delivering snapshots afterwards. May be
	// nil.
	OnError func(error)
}

// Subscription is the handle for one listener.
type Subscription interface {
	// Unsubscribe stops delivery. It does not wait for a callback
	// already in progress, so it is safe to call from inside one.
	// Calling it more than once is harmless.
	Unsubscribe()
}

// Feed is a remote store of flat collections.
type Feed interface {
	// Subscribe registers listener on path. It returns an error when
	// the listener cannot be established; the first snapshot arrives
	// through the listener.
	Subscribe(ctx context.Context, path string, listener Listener) (Subscription, error)

	// Write stores fields under path/id, replacing any previous value.
	Write(ctx context.Context, path, id string, fields record.Fields) error

	// Delete removes path/id. Deleting an absent record succeeds.
	Delete(ctx context.Context, path, id string) error
}

// SnapshotFromMap builds a snapshot from the ID→fields mapping a feed
// payload carries. Entries whose value is not a field map are dropped.
func SnapshotFromMap(path string, payload map[string]any) Snapshot {
	snapshot := Snapshot{Path: path, Records: make([]record.Record, 0, len(payload))}
	for id, value := range payload {
		var fields record.Fields
		switch typed := value.(type) {
		case map[string]any:
			fields = record.Fields(typed)
		case record.Fields:
			fields = typed
		default:
			continue
		}
		snapshot.Records = append(snapshot.Records, record.Record{ID: id, Fields: fields})
	}
	SortRecords(snapshot.Records)
	return snapshot
}

// SortRecords orders records by ID, which is creation order for IDs
// minted by record.IDGenerator.
func SortRecords(records []record.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

// CleanPath strips surrounding slashes so "/emergency_alerts" and
// "emergency_alerts" name the same collection.
func CleanPath(path string) string {
	return strings.Trim(path, "/")
}
