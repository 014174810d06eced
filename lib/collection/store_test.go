// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package collection

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/testutil"
)

func alert(id, kind string) record.Record {
	return record.Record{ID: id, Fields: record.Fields{"type": kind}}
}

func ids(snapshot Snapshot) []string {
	var result []string
	for _, stored := range snapshot.Records() {
		result = append(result, stored.ID)
	}
	return result
}

func requireIDs(t *testing.T, snapshot Snapshot, want ...string) {
	t.Helper()
	if got := ids(snapshot); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestEmptyStore(t *testing.T) {
	store := NewStore()
	snapshot := store.Snapshot()
	if snapshot.Len() != 0 || snapshot.Revision() != 0 {
		t.Fatalf("new store: len %d revision %d", snapshot.Len(), snapshot.Revision())
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("Get on empty store found a record")
	}
	if snapshot.Position("missing") != -1 {
		t.Error("Position of a missing id should be -1")
	}
}

func TestReplaceAllKeepsGivenOrder(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]record.Record{alert("c", "fire"), alert("a", "flood"), alert("b", "medical")})
	requireIDs(t, store.Snapshot(), "c", "a", "b")

	store.ReplaceAll([]record.Record{alert("b", "medical")})
	requireIDs(t, store.Snapshot(), "b")

	store.ReplaceAll(nil)
	requireIDs(t, store.Snapshot())
}

func TestReplaceAllDuplicateIDLastValueWins(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]record.Record{alert("a", "fire"), alert("b", "flood"), alert("a", "smoke")})
	requireIDs(t, store.Snapshot(), "a", "b")
	stored, _ := store.Get("a")
	if stored.Fields["type"] != "smoke" {
		t.Errorf("a.type = %v, want smoke", stored.Fields["type"])
	}
}

func TestPutAppendsOrUpdatesInPlace(t *testing.T) {
	store := NewStore()
	store.Put(alert("a", "fire"))
	store.Put(alert("b", "flood"))
	store.Put(alert("a", "smoke"))

	requireIDs(t, store.Snapshot(), "a", "b")
	stored, _ := store.Get("a")
	if stored.Fields["type"] != "smoke" {
		t.Errorf("a.type = %v, want smoke", stored.Fields["type"])
	}
}

func TestInsertRestoresPosition(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]record.Record{alert("a", "fire"), alert("b", "flood"), alert("c", "medical")})

	removed, ok := store.Remove("b")
	if !ok {
		t.Fatal("Remove(b) reported absent")
	}
	requireIDs(t, store.Snapshot(), "a", "c")

	store.Insert(1, removed)
	requireIDs(t, store.Snapshot(), "a", "b", "c")

	store.Insert(99, alert("d", "storm"))
	store.Insert(-3, alert("z", "quake"))
	requireIDs(t, store.Snapshot(), "z", "a", "b", "c", "d")
}

func TestRemoveAbsentPublishesNothing(t *testing.T) {
	store := NewStore()
	store.Put(alert("a", "fire"))
	changes, cancel := store.Subscribe()
	defer cancel()

	if _, ok := store.Remove("missing"); ok {
		t.Fatal("Remove of a missing id reported success")
	}
	testutil.RequireNoReceive(t, changes, 20*time.Millisecond, "remove of a missing id")
	if store.Snapshot().Revision() != 1 {
		t.Errorf("revision = %d, want 1", store.Snapshot().Revision())
	}
}

func TestReplaceAllNotifiesOnce(t *testing.T) {
	store := NewStore()
	changes, cancel := store.Subscribe()
	defer cancel()

	store.ReplaceAll([]record.Record{alert("a", "fire"), alert("b", "flood"), alert("c", "medical")})

	change := testutil.RequireReceive(t, changes, time.Second, "replace notification")
	if change.Kind != ChangeReplace || change.Revision != 1 {
		t.Errorf("change = %+v, want replace at revision 1", change)
	}
	testutil.RequireNoReceive(t, changes, 20*time.Millisecond, "second notification for one ReplaceAll")
}

func TestSlowSubscriberSeesNewestChange(t *testing.T) {
	store := NewStore()
	changes, cancel := store.Subscribe()
	defer cancel()

	store.Put(alert("a", "fire"))
	store.Put(alert("b", "flood"))
	store.Remove("a")

	change := testutil.RequireReceive(t, changes, time.Second, "coalesced change")
	if change.Revision != 3 || change.Kind != ChangeRemove || change.ID != "a" {
		t.Errorf("change = %+v, want remove a at revision 3", change)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := NewStore()
	changes, cancel := store.Subscribe()
	cancel()
	cancel()

	store.Put(alert("a", "fire"))
	testutil.RequireNoReceive(t, changes, 20*time.Millisecond, "change after unsubscribe")
}

func TestStoreCopiesCallerFields(t *testing.T) {
	store := NewStore()
	fields := record.Fields{"type": "fire"}
	store.Put(record.Record{ID: "a", Fields: fields})
	fields["type"] = "mutated"

	stored, _ := store.Get("a")
	if stored.Fields["type"] != "fire" {
		t.Errorf("store aliased caller fields: type = %v", stored.Fields["type"])
	}
}

func TestSnapshotUnaffectedByLaterWrites(t *testing.T) {
	store := NewStore()
	store.Put(alert("a", "fire"))
	before := store.Snapshot()

	store.Put(alert("b", "flood"))
	store.Remove("a")

	requireIDs(t, before, "a")
	requireIDs(t, store.Snapshot(), "b")
}

// TestNoTornReads replaces the contents concurrently with readers.
// Every generation writes records stamped with the same generation
// number and count, so a reader that sees mixed stamps or the wrong
// count has observed a partial write.
func TestNoTornReads(t *testing.T) {
	store := NewStore()
	const generations = 300

	var waitGroup sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snapshot := store.Snapshot()
				records := snapshot.Records()
				if len(records) == 0 {
					continue
				}
				generation := records[0].Fields["generation"].(int)
				if len(records) != generation%7+1 {
					t.Errorf("generation %d has %d records, want %d", generation, len(records), generation%7+1)
					return
				}
				for _, stored := range records {
					if stored.Fields["generation"] != generation {
						t.Errorf("snapshot mixes generations %d and %v", generation, stored.Fields["generation"])
						return
					}
				}
			}
		}()
	}

	for generation := 1; generation <= generations; generation++ {
		batch := make([]record.Record, generation%7+1)
		for i := range batch {
			batch[i] = record.Record{
				ID:     fmt.Sprintf("r%d", i),
				Fields: record.Fields{"generation": generation},
			}
		}
		store.ReplaceAll(batch)
	}
	close(stop)
	waitGroup.Wait()
}
