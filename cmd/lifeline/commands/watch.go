// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/schema"
	"github.com/lifeline-foundation/lifeline/lib/screen"
)

func (app *App) watchCommand() *cli.Command {
	var (
		connect connectFlags
		fuzzy   bool
		theme   string
		asUser  bool
	)
	return &cli.Command{
		Name:    "watch",
		Summary: "Browse a collection live in the terminal",
		Description: `Open a full-screen view of a collection that follows the feed as it
changes. Type / to search, n to add a record and d to delete the
selected one; keys for actions your role may not perform are not
offered.

Admins can pass --as-user to see the screen as a regular user would.`,
		Usage: "lifeline watch <collection> [flags]",
		Examples: []cli.Example{
			{Command: "lifeline watch alerts"},
			{Description: "Light theme with fuzzy search", Command: "lifeline watch missing-persons --theme light --fuzzy"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			connect.register(flagSet)
			flagSet.BoolVar(&fuzzy, "fuzzy", false, "rank search results by fuzzy match")
			flagSet.StringVar(&theme, "theme", "", "auto, dark or light, overriding ui.theme")
			flagSet.BoolVar(&asUser, "as-user", false, "act with the user role even when signed in as an admin")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: lifeline watch <collection>")
			}

			dialContext, cancel := withTimeout(app.Context, connect.timeout)
			defer cancel()
			conn, err := app.connect(dialContext, &connect)
			if err != nil {
				return err
			}
			defer conn.Close()
			collection, err := conn.collection(args[0], schema.ActionView)
			if err != nil {
				return err
			}

			user := conn.client.User()
			if asUser {
				user = user.WithRole(account.RoleUser)
			}
			if theme == "" {
				theme = conn.config.UI.Theme
			}
			selected, err := screen.ThemeByName(theme, termenv.NewOutput(app.Stdout))
			if err != nil {
				return err
			}

			var program atomic.Pointer[tea.Program]
			onError := func(err error) {
				if running := program.Load(); running != nil {
					running.Send(screen.ErrorMsg{Err: err})
				}
			}
			// The screen owns its sessions through the scope; closing it
			// detaches every listener before the connection goes away.
			scope := livesync.NewScope(conn.client)
			defer scope.Close()
			session, err := scope.Open(app.Context, collection.Path, conn.sessionOptions(collection, onError))
			if err != nil {
				return err
			}

			model := screen.New(screen.Config{
				Session:    session,
				Collection: collection,
				User:       user,
				Theme:      selected,
				Fuzzy:      fuzzy,
			})
			defer model.Stop()

			running := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(app.Context),
				tea.WithInput(app.Stdin),
				tea.WithOutput(app.Stdout),
			)
			program.Store(running)
			defer program.Store(nil)

			_, err = running.Run()
			if errors.Is(err, tea.ErrProgramKilled) && app.Context.Err() != nil {
				return nil
			}
			return err
		},
	}
}
