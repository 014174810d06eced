// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/version"
)

func (app *App) versionCommand() *cli.Command {
	var short bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print the build version",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&short, "short", false, "print only the version line")
			return flagSet
		},
		Run: func(args []string) error {
			text := version.Full()
			if short {
				text = version.Info()
			}
			_, err := fmt.Fprintln(app.Stdout, "lifeline", text)
			return err
		},
	}
}
