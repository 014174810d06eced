// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

func (app *App) createCommand() *cli.Command {
	var (
		connect     connectFlags
		assignments []string
		jsonInput   string
	)
	return &cli.Command{
		Name:    "create",
		Summary: "Add a record to a collection",
		Description: `Add a record to a collection and wait for the feed service to accept
it. The new record's ID is printed on success.

Fields are given as --field path=value, using dots for nested fields,
or as a JSON object (comments allowed) read from --json. --field
values override the same paths from --json. Every field the
collection defines is required.`,
		Usage: "lifeline create <collection> [flags]",
		Examples: []cli.Example{
			{
				Description: "Report a fire",
				Command:     "lifeline create alerts --field type=fire --field location.latitude=52.52 --field location.longitude=13.40",
			},
			{
				Description: "File a report from a JSON file",
				Command:     "lifeline create missing-persons --json report.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			connect.register(flagSet)
			flagSet.StringArrayVarP(&assignments, "field", "f", nil, "field as path=value; repeat for each field")
			flagSet.StringVar(&jsonInput, "json", "", "read fields as a JSON object from this file, or - for stdin")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: lifeline create <collection> --field path=value...")
			}
			collection, ok := schema.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q", args[0])
			}
			fields, err := readFields(collection, assignments, jsonInput, app.Stdin)
			if err != nil {
				return err
			}
			if err := collection.Validate(fields); err != nil {
				return err
			}

			ctx, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()
			conn, err := app.connect(ctx, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()
			if collection, err = conn.collection(collection.Name, schema.ActionCreate); err != nil {
				return err
			}

			sink := newErrorSink()
			var id string
			err = livesync.With(ctx, conn.client, collection.Path, conn.sessionOptions(collection, sink.report),
				func(session *livesync.Session) error {
					var err error
					if id, err = session.Create(fields); err != nil {
						return err
					}
					return awaitMutation(ctx, session, sink, id, rejectionGrace, func() bool {
						_, present := session.Snapshot().Get(id)
						return present
					})
				})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.Stdout, id)
			return err
		},
	}
}

// readFields merges the --json object and the --field assignments.
func readFields(collection schema.Collection, assignments []string, jsonInput string, stdin io.Reader) (record.Fields, error) {
	fields := record.Fields{}
	if jsonInput != "" {
		var data []byte
		var err error
		if jsonInput == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(jsonInput)
		}
		if err != nil {
			return nil, fmt.Errorf("reading --json: %w", err)
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), &fields); err != nil {
			return nil, fmt.Errorf("parsing --json: %w", err)
		}
	}

	values := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		path, value, ok := strings.Cut(assignment, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("--field %q: want path=value", assignment)
		}
		values[strings.TrimSpace(path)] = value
	}
	parsed, err := collection.FieldsFromText(values)
	if err != nil {
		return nil, err
	}
	for path := range values {
		if value, ok := parsed.Lookup(path); ok {
			fields.Set(path, value)
		}
	}
	return fields, nil
}
