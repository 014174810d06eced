// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/projection"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

func (app *App) listCommand() *cli.Command {
	var (
		connect    connectFlags
		search     string
		fuzzy      bool
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "Print the records of a collection",
		Description: `Print every record of a collection once the feed has delivered its
current contents. --search keeps the records whose search fields
contain the text, ignoring case; with --fuzzy the records are ranked
by fuzzy match instead, best first.`,
		Usage: "lifeline list <collection> [flags]",
		Examples: []cli.Example{
			{Description: "Show all alerts", Command: "lifeline list alerts"},
			{Description: "Find a missing person by name", Command: "lifeline list missing-persons --search maria"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			connect.register(flagSet)
			flagSet.StringVarP(&search, "search", "s", "", "show only records matching this text")
			flagSet.BoolVar(&fuzzy, "fuzzy", false, "rank by fuzzy match instead of filtering by substring")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: lifeline list <collection>")
			}
			ctx, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()

			conn, err := app.connect(ctx, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()
			collection, err := conn.collection(args[0], schema.ActionView)
			if err != nil {
				return err
			}

			sink := newErrorSink()
			var records []record.Record
			err = livesync.With(ctx, conn.client, collection.Path, conn.sessionOptions(collection, sink.report),
				func(session *livesync.Session) error {
					if err := waitLive(ctx, session, sink); err != nil {
						return err
					}
					records = session.Snapshot().Records()
					return nil
				})
			if err != nil {
				return err
			}

			records = narrow(records, collection, search, fuzzy)
			if jsonOutput {
				return cli.WriteJSON(app.Stdout, records)
			}
			return writeTable(app.Stdout, collection, records)
		},
	}
}

// narrow applies the --search and --fuzzy flags.
func narrow(records []record.Record, collection schema.Collection, query string, fuzzy bool) []record.Record {
	if !fuzzy {
		return projection.Project(records, projection.Substring(query, collection.SearchFields...))
	}
	ranked := projection.Rank(records, query, collection.SearchFields...)
	narrowed := make([]record.Record, len(ranked))
	for i, result := range ranked {
		narrowed[i] = result.Record
	}
	return narrowed
}

// writeTable prints records under the collection's column headers.
func writeTable(w io.Writer, collection schema.Collection, records []record.Record) error {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	headers := []string{"ID"}
	for _, column := range collection.Columns {
		headers = append(headers, strings.ToUpper(column.Header))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, current := range records {
		cells := []string{current.ID}
		for _, column := range collection.Columns {
			cells = append(cells, strings.ReplaceAll(current.Fields.Text(column.Field), "\t", " "))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
