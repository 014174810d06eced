// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

func (app *App) deleteCommand() *cli.Command {
	var connect connectFlags
	return &cli.Command{
		Name:    "delete",
		Summary: "Remove a record from a collection",
		Description: `Remove one record and wait for the feed service to accept the delete.
Fails when the record does not exist or the signed-in role may not
delete from the collection.`,
		Usage: "lifeline delete <collection> <id> [flags]",
		Examples: []cli.Example{
			{Command: "lifeline delete alerts 01JBQ3M6Z8T7Y0W8J3H2K4N5P6"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			connect.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: lifeline delete <collection> <id>")
			}
			id := args[1]

			ctx, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()
			conn, err := app.connect(ctx, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()
			collection, err := conn.collection(args[0], schema.ActionDelete)
			if err != nil {
				return err
			}

			sink := newErrorSink()
			err = livesync.With(ctx, conn.client, collection.Path, conn.sessionOptions(collection, sink.report),
				func(session *livesync.Session) error {
					if err := waitLive(ctx, session, sink); err != nil {
						return err
					}
					if err := session.Delete(id); err != nil {
						return err
					}
					return awaitMutation(ctx, session, sink, id, rejectionGrace, func() bool {
						_, present := session.Snapshot().Get(id)
						return !present
					})
				})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(app.Stdout, "deleted %s\n", id)
			return err
		},
	}
}
