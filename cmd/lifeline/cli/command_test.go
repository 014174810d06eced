// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var received []string
	root := &Command{
		Name: "lifeline",
		Subcommands: []*Command{
			{Name: "version", Run: func(args []string) error { called = "version"; return nil }},
			{Name: "list", Run: func(args []string) error { called = "list"; received = args; return nil }},
		},
	}

	if err := root.Execute([]string{"list", "alerts"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "list" {
		t.Errorf("dispatched to %q, want list", called)
	}
	if len(received) != 1 || received[0] != "alerts" {
		t.Errorf("args = %v, want [alerts]", received)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var search string
	var fuzzy bool
	var received []string
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&search, "search", "", "filter")
			flagSet.BoolVar(&fuzzy, "fuzzy", false, "rank")
			return flagSet
		},
		Run: func(args []string) error { received = args; return nil },
	}

	if err := command.Execute([]string{"alerts", "--search", "fire", "--fuzzy"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if search != "fire" || !fuzzy {
		t.Errorf("search=%q fuzzy=%v", search, fuzzy)
	}
	if len(received) != 1 || received[0] != "alerts" {
		t.Errorf("args = %v", received)
	}
}

func TestUnknownCommandSuggestsClosest(t *testing.T) {
	root := &Command{
		Name: "lifeline",
		Subcommands: []*Command{
			{Name: "watch", Run: func([]string) error { return nil }},
			{Name: "whoami", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"wtach"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "watch"`) {
		t.Fatalf("Execute = %v", err)
	}
	err = root.Execute([]string{"completely-different"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("Execute = %v", err)
	}
}

func TestUnknownFlagSuggestsClosest(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.String("search", "", "filter")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}
	err := command.Execute([]string{"--serch", "x"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --search?") {
		t.Fatalf("Execute = %v", err)
	}
}

func TestGroupWithoutCommandPrintsHelp(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:       "lifeline",
		HelpOutput: &help,
		Subcommands: []*Command{
			{Name: "list", Summary: "List records", Run: func([]string) error { return nil }},
		},
	}
	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute without a command succeeded")
	}
	if !strings.Contains(help.String(), "List records") {
		t.Fatalf("help = %q", help.String())
	}

	help.Reset()
	if err := root.Execute([]string{"list", "--help"}); err != nil {
		t.Fatalf("Execute --help: %v", err)
	}
	if !strings.Contains(help.String(), "lifeline list [flags]") {
		t.Fatalf("subcommand help = %q", help.String())
	}
}

func TestPrintHelpListsFlagsAndExamples(t *testing.T) {
	command := &Command{
		Name:        "create",
		Description: "Create a record.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flagSet.StringArray("field", nil, "field value as path=value")
			return flagSet
		},
		Examples: []Example{{Description: "Report a fire", Command: "lifeline create alerts --field type=fire"}},
	}
	var help bytes.Buffer
	command.PrintHelp(&help)
	for _, want := range []string{"Create a record.", "--field", "# Report a fire", "lifeline create alerts"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help missing %q:\n%s", want, help.String())
		}
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) || coder.ExitCode() != 3 {
		t.Fatalf("ExitError does not report its code")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"watch", "watch", 0},
		{"wtach", "watch", 2},
		{"list", "lists", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestWriteJSONNormalizesNilSlices(t *testing.T) {
	var buffer bytes.Buffer
	var empty []string
	if err := WriteJSON(&buffer, empty); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Fatalf("WriteJSON(nil slice) = %q", got)
	}
}
