// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/version"
)

// App carries the process context and standard streams into the
// commands.
type App struct {
	Context context.Context
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Root returns the lifeline command tree.
func Root(app *App) *cli.Command {
	return &cli.Command{
		Name:       "lifeline",
		HelpOutput: app.Stderr,
		Description: `Lifeline keeps emergency alerts, missing-person reports and the user
directory in sync with the feed service.

Commands sign in with feed.email from the config file (or --email) and
work on one collection at a time: alerts, missing-persons or users.`,
		Subcommands: []*cli.Command{
			app.listCommand(),
			app.createCommand(),
			app.deleteCommand(),
			app.watchCommand(),
			app.collectionsCommand(),
			app.whoamiCommand(),
			app.versionCommand(),
		},
	}
}

// Execute runs the command line args. A lone --version prints the
// build version.
func Execute(app *App, args []string) error {
	if len(args) == 1 && args[0] == "--version" {
		_, err := fmt.Fprintln(app.Stdout, "lifeline", version.Info())
		return err
	}
	return Root(app).Execute(args)
}
