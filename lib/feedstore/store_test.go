// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "feed.db"),
		Clock:  clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger: testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestPutAndRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fire := record.Fields{"type": "fire", "location": map[string]any{"latitude": 1.25, "longitude": -3.0}}
	if err := store.Put(ctx, "emergency_alerts", "02", fire); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "emergency_alerts", "01", record.Fields{"type": "flood"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "users", "01", record.Fields{"username": "ana"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	records, err := store.Records(ctx, "emergency_alerts")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 2 || records[0].ID != "01" || records[1].ID != "02" {
		t.Fatalf("records = %+v, want 01 then 02", records)
	}
	if !records[1].Fields.Equal(fire) {
		t.Errorf("fields = %v, want %v", records[1].Fields, fire)
	}

	// Replace in place.
	if err := store.Put(ctx, "emergency_alerts", "01", record.Fields{"type": "storm"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	records, _ = store.Records(ctx, "emergency_alerts")
	if len(records) != 2 || records[0].Fields.Text("type") != "storm" {
		t.Fatalf("after replace: %+v", records)
	}

	if count, err := store.Count(ctx); err != nil || count != 3 {
		t.Fatalf("Count = %d, %v; want 3", count, err)
	}
}

func TestUnknownPathIsEmpty(t *testing.T) {
	store := openTestStore(t)
	records, err := store.Records(context.Background(), "missing-persons")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %v, want none", records)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "users", "u1", record.Fields{"username": "ana"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := store.Delete(ctx, "users", "u1")
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v; want true", removed, err)
	}
	removed, err = store.Delete(ctx, "users", "u1")
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v; want false", removed, err)
	}
}

func TestImport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Import(ctx, map[string][]record.Record{
		"emergency_alerts": {{ID: "1700000000000", Fields: record.Fields{"type": "fire"}}},
		"missing-persons": {
			{ID: "a", Fields: record.Fields{"name": "Ana", "location": "Porto", "description": "red coat"}},
			{ID: "b", Fields: record.Fields{"name": "Rui", "location": "Braga", "description": "glasses"}},
		},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if count, _ := store.Count(ctx); count != 3 {
		t.Fatalf("Count = %d, want 3", count)
	}
	people, _ := store.Records(ctx, "missing-persons")
	if len(people) != 2 || people[1].Fields.Text("name") != "Rui" {
		t.Fatalf("missing-persons = %+v", people)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")
	ctx := context.Background()

	store, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Put(ctx, "users", "u1", record.Fields{"username": "ana"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	records, err := reopened.Records(ctx, "users")
	if err != nil || len(records) != 1 || records[0].Fields.Text("username") != "ana" {
		t.Fatalf("after reopen: %+v, %v", records, err)
	}
}
