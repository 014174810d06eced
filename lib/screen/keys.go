// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of a collection screen.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding
	Home key.Binding
	End  key.Binding

	Search      key.Binding
	ClearSearch key.Binding

	New    key.Binding
	Delete key.Binding

	// Confirm and Cancel answer the delete prompt.
	Confirm key.Binding
	Cancel  key.Binding

	// Form navigation.
	NextField     key.Binding
	PreviousField key.Binding
	Submit        key.Binding
	Back          key.Binding

	ToggleTheme key.Binding
	Quit        key.Binding
}

// DefaultKeyMap is the built-in binding set: vim-style movement
// alongside the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Home: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	ClearSearch: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "clear search"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d", "delete"),
		key.WithHelp("d", "delete"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "confirm"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("n", "esc"),
		key.WithHelp("n/Esc", "cancel"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("Tab", "next field"),
	),
	PreviousField: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("S-Tab", "previous field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "save"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "back"),
	),
	ToggleTheme: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "theme"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// listHelp is the help.KeyMap shown while browsing.
type listHelp struct{ keys *KeyMap }

func (h listHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.keys.Up, h.keys.Down, h.keys.Search, h.keys.New, h.keys.Delete, h.keys.ToggleTheme, h.keys.Quit}
}

func (h listHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{h.keys.Up, h.keys.Down, h.keys.Home, h.keys.End},
		{h.keys.Search, h.keys.ClearSearch},
		{h.keys.New, h.keys.Delete},
		{h.keys.ToggleTheme, h.keys.Quit},
	}
}

// formHelp is the help.KeyMap shown in the entry form.
type formHelp struct{ keys *KeyMap }

func (h formHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.keys.NextField, h.keys.PreviousField, h.keys.Submit, h.keys.Back}
}

func (h formHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp()}
}
