// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/testutil"
)

func TestRelayKeepsErrorsAndNewestSnapshot(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	events := make(chan string, 16)

	relay := NewRelay(Listener{
		OnSnapshot: func(snapshot Snapshot) {
			if snapshot.Path == "block" {
				close(entered)
				<-release
				return
			}
			events <- "snapshot " + snapshotIDs(snapshot)
		},
		OnError: func(err error) { events <- "error " + err.Error() },
	})
	defer relay.Stop()

	relay.Offer(Snapshot{Path: "block"})
	testutil.RequireClosed(t, entered, timeout, "listener blocked")

	relay.Offer(Snapshot{Path: "p", Records: []record.Record{{ID: "old"}}})
	relay.Fail(errors.New("dropped"))
	relay.Offer(Snapshot{Path: "p", Records: []record.Record{{ID: "new"}}})
	close(release)

	want := []string{"error dropped", "snapshot [new]"}
	for _, expected := range want {
		if got := testutil.RequireReceive(t, events, timeout, expected); got != expected {
			t.Fatalf("event = %q, want %q", got, expected)
		}
	}
	testutil.RequireNoReceive(t, events, 50*time.Millisecond, "superseded snapshot delivered")
}

func TestRelayStopDiscardsQueue(t *testing.T) {
	delivered := make(chan Snapshot, 4)
	relay := NewRelay(Listener{OnSnapshot: func(snapshot Snapshot) { delivered <- snapshot }})
	relay.Stop()
	relay.Stop()
	relay.Offer(Snapshot{Path: "late"})
	testutil.RequireNoReceive(t, delivered, 50*time.Millisecond, "delivery after Stop")
}
