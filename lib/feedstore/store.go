// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lifeline-foundation/lifeline/lib/clock"
	"github.com/lifeline-foundation/lifeline/lib/codec"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	path       TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	fields     BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (path, id)
) WITHOUT ROWID;
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file.
	Path string

	PoolSize int
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Store persists collections in SQLite. It is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the database at config.Path.
func Open(config Config) (*Store, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   config.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}
	return &Store{pool: pool, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Records returns every record under path, sorted by ID. An unknown
// path has no records.
func (s *Store) Records(ctx context.Context, path string) ([]record.Record, error) {
	var records []record.Record
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT id, fields FROM records WHERE path = ? ORDER BY id`, &sqlitex.ExecOptions{
			Args: []any{path},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id := stmt.ColumnText(0)
				data := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, data)
				fields, err := decodeFields(data)
				if err != nil {
					return fmt.Errorf("record %s/%s: %w", path, id, err)
				}
				records = append(records, record.Record{ID: id, Fields: fields})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("feedstore: reading %s: %w", path, err)
	}
	return records, nil
}

// Put stores fields under path/id, replacing any previous value.
func (s *Store) Put(ctx context.Context, path, id string, fields record.Fields) error {
	data, err := codec.Marshal(map[string]any(fields.Clone()))
	if err != nil {
		return fmt.Errorf("feedstore: encoding %s/%s: %w", path, id, err)
	}
	err = s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO records (path, id, fields, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (path, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{path, id, data, s.clock.Now().UnixMilli()}})
	})
	if err != nil {
		return fmt.Errorf("feedstore: writing %s/%s: %w", path, id, err)
	}
	return nil
}

// Delete removes path/id and reports whether it existed.
func (s *Store) Delete(ctx context.Context, path, id string) (bool, error) {
	var removed bool
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM records WHERE path = ? AND id = ?`, &sqlitex.ExecOptions{
			Args: []any{path, id},
		}); err != nil {
			return err
		}
		removed = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("feedstore: deleting %s/%s: %w", path, id, err)
	}
	return removed, nil
}

// Count returns the number of records across all paths.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT count(*) FROM records`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		return 0, fmt.Errorf("feedstore: counting: %w", err)
	}
	return count, nil
}

// Import writes every record in collections in one transaction,
// replacing records with the same path and ID.
func (s *Store) Import(ctx context.Context, collections map[string][]record.Record) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("feedstore: import: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("feedstore: import: %w", err)
	}
	defer endTransaction(&err)

	now := s.clock.Now().UnixMilli()
	imported := 0
	for path, records := range collections {
		for _, entry := range records {
			data, encodeErr := codec.Marshal(map[string]any(entry.Fields.Clone()))
			if encodeErr != nil {
				return fmt.Errorf("feedstore: encoding %s/%s: %w", path, entry.ID, encodeErr)
			}
			if execErr := sqlitex.Execute(conn, `
				INSERT INTO records (path, id, fields, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (path, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
				&sqlitex.ExecOptions{Args: []any{path, entry.ID, data, now}}); execErr != nil {
				return fmt.Errorf("feedstore: importing %s/%s: %w", path, entry.ID, execErr)
			}
		}
		imported += len(records)
	}
	s.logger.Info("records imported", "records", imported, "paths", len(collections))
	return nil
}

func decodeFields(data []byte) (record.Fields, error) {
	var fields map[string]any
	if err := codec.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return record.Fields(fields), nil
}
