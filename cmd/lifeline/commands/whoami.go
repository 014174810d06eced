// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

func (app *App) whoamiCommand() *cli.Command {
	var (
		connect    connectFlags
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the identity and role the feed service assigns",
		Description: `Sign in to the feed service and print the user it reports: username,
email and role. The role is decided by the service from its admin list.`,
		Usage: "lifeline whoami [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			connect.register(flagSet)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: lifeline whoami")
			}
			ctx, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()
			conn, err := app.connect(ctx, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()

			user := conn.client.User()
			if jsonOutput {
				return cli.WriteJSON(app.Stdout, user)
			}
			tw := tabwriter.NewWriter(app.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Username:\t%s\n", user.Username)
			fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
			fmt.Fprintf(tw, "Role:\t%s\n", user.Role)
			fmt.Fprintf(tw, "Feed:\t%s\n", conn.config.Feed.URL)
			return tw.Flush()
		},
	}
}

// collectionInfo is the JSON form of one collections row.
type collectionInfo struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Actions []string `json:"actions"`
}

func (app *App) collectionsCommand() *cli.Command {
	var (
		connect    connectFlags
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "collections",
		Summary: "List the collections your role may see",
		Usage:   "lifeline collections [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("collections", pflag.ContinueOnError)
			connect.register(flagSet)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()
			conn, err := app.connect(ctx, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()

			role := conn.client.User().Role
			var infos []collectionInfo
			for _, collection := range schema.Visible(role) {
				info := collectionInfo{Name: collection.Name, Path: collection.Path, Title: collection.Title}
				for _, action := range []schema.Action{schema.ActionView, schema.ActionCreate, schema.ActionDelete} {
					if collection.Allows(role, action) {
						info.Actions = append(info.Actions, string(action))
					}
				}
				infos = append(infos, info)
			}
			if jsonOutput {
				return cli.WriteJSON(app.Stdout, infos)
			}

			tw := tabwriter.NewWriter(app.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH\tACTIONS")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Path, strings.Join(info.Actions, ","))
			}
			return tw.Flush()
		},
	}
}
