// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lifeline-foundation/lifeline/lib/sqlitepool"
)

func TestPragmasApplied(t *testing.T) {
	pool := openTestPool(t, 2, nil)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		var journalMode string
		var busyTimeout int
		if err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		}); err != nil {
			return err
		}
		if err := sqlitex.Execute(conn, "PRAGMA busy_timeout", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				busyTimeout = stmt.ColumnInt(0)
				return nil
			},
		}); err != nil {
			return err
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}
		if busyTimeout != 5000 {
			t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}

func TestOnConnectCreatesSchema(t *testing.T) {
	pool := openTestPool(t, 4, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `CREATE TABLE IF NOT EXISTS numbers (value INTEGER NOT NULL);`, nil)
	})
	ctx := context.Background()

	if err := pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `INSERT INTO numbers (value) VALUES (1), (2), (3), (4), (5);`, nil)
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var group sync.WaitGroup
	sums := make(chan int64, 8)
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			var sum int64
			err := pool.With(ctx, func(conn *sqlite.Conn) error {
				return sqlitex.Execute(conn, "SELECT value FROM numbers", &sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						sum += stmt.ColumnInt64(0)
						return nil
					},
				})
			})
			if err != nil {
				t.Error(err)
			}
			sums <- sum
		}()
	}
	group.Wait()
	close(sums)
	for sum := range sums {
		if sum != 15 {
			t.Errorf("sum = %d, want 15", sum)
		}
	}
}

func TestWithReturnsCallbackError(t *testing.T) {
	pool := openTestPool(t, 1, nil)
	failure := errors.New("callback failed")
	if err := pool.With(context.Background(), func(*sqlite.Conn) error { return failure }); !errors.Is(err, failure) {
		t.Fatalf("With = %v, want callback error", err)
	}
	// The connection went back to the pool.
	if err := pool.With(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		t.Fatalf("second With: %v", err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonorsCancellation(t *testing.T) {
	pool := openTestPool(t, 1, nil)
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take on an exhausted pool with a cancelled context succeeded")
	}
}

func openTestPool(t *testing.T, size int, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  size,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
