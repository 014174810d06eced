// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/lifeline-foundation/lifeline/lib/feed"
	"github.com/lifeline-foundation/lifeline/lib/feedstore"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

// seedIfEmpty imports the seed file when the store holds no records.
func seedIfEmpty(ctx context.Context, store *feedstore.Store, path string, logger *slog.Logger) error {
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("database not empty, skipping seed", "seed_file", path, "records", count)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	collections, err := parseSeed(data)
	if err != nil {
		return fmt.Errorf("seed file %s: %w", path, err)
	}
	if err := store.Import(ctx, collections); err != nil {
		return err
	}
	logger.Info("database seeded", "seed_file", path, "paths", len(collections))
	return nil
}

// parseSeed decodes a seed document and checks every record against
// its collection. All problems are reported together.
func parseSeed(data []byte) (map[string][]record.Record, error) {
	var document map[string]map[string]record.Fields
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	collections := make(map[string][]record.Record, len(document))
	var errs []error
	for rawPath, entries := range document {
		path := feed.CleanPath(rawPath)
		collection, ok := schema.Lookup(path)
		if !ok || collection.Path != path {
			errs = append(errs, fmt.Errorf("%s: not a collection path", rawPath))
			continue
		}
		records := make([]record.Record, 0, len(entries))
		for id, fields := range entries {
			if !record.ValidID(id) {
				errs = append(errs, fmt.Errorf("%s/%s: invalid record id", path, id))
				continue
			}
			if err := collection.Validate(fields); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", path, id, err))
				continue
			}
			records = append(records, record.Record{ID: id, Fields: fields})
		}
		feed.SortRecords(records)
		collections[path] = records
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return collections, nil
}
