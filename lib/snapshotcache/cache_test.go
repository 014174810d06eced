// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package snapshotcache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/testutil"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(Config{
		Directory: filepath.Join(t.TempDir(), "snapshots"),
		Clock:     clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:    testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache
}

func sampleRecords() []record.Record {
	return []record.Record{
		{ID: "01J9Z3T2A8B5C6D7E8F9G0H1J2", Fields: record.Fields{
			"type":     "fire",
			"location": map[string]any{"latitude": 38.72, "longitude": -9.14},
		}},
		{ID: "01J9Z3T2A8B5C6D7E8F9G0H1J3", Fields: record.Fields{
			"type":     "flood",
			"location": map[string]any{"latitude": 52.37, "longitude": 4.89},
		}},
	}
}

func TestSaveThenLoad(t *testing.T) {
	cache := newCache(t)
	want := sampleRecords()
	if err := cache.Save("emergency_alerts", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := cache.Load("emergency_alerts")
	if err != nil || !found {
		t.Fatalf("Load = found %v, %v", found, err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoadMissingPath(t *testing.T) {
	cache := newCache(t)
	records, found, err := cache.Load("missing-persons")
	if err != nil || found || records != nil {
		t.Fatalf("Load = %v, %v, %v; want nothing", records, found, err)
	}
}

func TestSaveReplacesAndEmptySnapshotIsFound(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("users", sampleRecords()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Save("users", nil); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	records, found, err := cache.Load("users")
	if err != nil || !found || len(records) != 0 {
		t.Fatalf("Load = %d records, found %v, %v; want an empty snapshot", len(records), found, err)
	}
}

func TestPathsAreIndependent(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("emergency_alerts", sampleRecords()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Save("nested/path", sampleRecords()[:1]); err != nil {
		t.Fatalf("Save nested: %v", err)
	}
	nested, _, err := cache.Load("nested/path")
	if err != nil || len(nested) != 1 {
		t.Fatalf("nested Load = %d records, %v", len(nested), err)
	}

	if err := cache.Remove("emergency_alerts"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := cache.Remove("emergency_alerts"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, found, _ := cache.Load("emergency_alerts"); found {
		t.Fatal("removed snapshot still found")
	}
}

func TestCorruptionDetected(t *testing.T) {
	tests := []struct {
		name   string
		damage func([]byte) []byte
	}{
		{"truncated_header", func(data []byte) []byte { return data[:10] }},
		{"bad_magic", func(data []byte) []byte { data[0] = 'X'; return data }},
		{"future_version", func(data []byte) []byte { data[4] = 99; return data }},
		{"checksum_flipped", func(data []byte) []byte { data[5] ^= 0xff; return data }},
		{"body_truncated", func(data []byte) []byte { return data[:len(data)-4] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newCache(t)
			if err := cache.Save("emergency_alerts", sampleRecords()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			filename := cache.filename("emergency_alerts")
			data, err := os.ReadFile(filename)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if err := os.WriteFile(filename, tt.damage(data), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			_, found, err := cache.Load("emergency_alerts")
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Load = %v, want ErrCorrupt", err)
			}
			if found {
				t.Fatal("corrupt snapshot reported as found")
			}
		})
	}
}

func TestChecksumCoversBody(t *testing.T) {
	body := []byte("snapshot body")
	sealed := seal(body)
	if _, err := unseal(sealed); err != nil {
		t.Fatalf("unseal: %v", err)
	}

	other := seal([]byte("snapshot bodY"))
	copy(other[5:headerSize], sealed[5:headerSize])
	if _, err := unseal(other); err == nil {
		t.Fatal("unseal accepted a body that does not match its checksum")
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without Directory succeeded")
	}
}
