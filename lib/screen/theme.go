// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is the color palette of a screen. Colors are ANSI 256-color
// codes for broad terminal compatibility.
type Theme struct {
	// Name is "dark" or "light".
	Name string

	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// PendingText marks records whose create is unconfirmed.
	PendingText lipgloss.Color

	ErrorText lipgloss.Color

	// Session state badges.
	StateLive    lipgloss.Color
	StateWaiting lipgloss.Color
	StateStale   lipgloss.Color
}

// DarkTheme suits terminals with a dark background.
var DarkTheme = Theme{
	Name:               "dark",
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("245"),
	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	HeaderForeground:   lipgloss.Color("255"),
	BorderColor:        lipgloss.Color("240"),
	HelpText:           lipgloss.Color("241"),
	PendingText:        lipgloss.Color("220"),
	ErrorText:          lipgloss.Color("196"),
	StateLive:          lipgloss.Color("114"),
	StateWaiting:       lipgloss.Color("75"),
	StateStale:         lipgloss.Color("208"),
}

// LightTheme suits terminals with a light background.
var LightTheme = Theme{
	Name:               "light",
	NormalText:         lipgloss.Color("235"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("254"),
	SelectedForeground: lipgloss.Color("232"),
	HeaderForeground:   lipgloss.Color("232"),
	BorderColor:        lipgloss.Color("250"),
	HelpText:           lipgloss.Color("244"),
	PendingText:        lipgloss.Color("130"),
	ErrorText:          lipgloss.Color("160"),
	StateLive:          lipgloss.Color("28"),
	StateWaiting:       lipgloss.Color("25"),
	StateStale:         lipgloss.Color("166"),
}

// Toggle returns the other theme.
func (theme Theme) Toggle() Theme {
	if theme.Name == LightTheme.Name {
		return DarkTheme
	}
	return LightTheme
}

// ThemeByName resolves a ui.theme setting. "auto" asks output whether
// the terminal background is dark; a nil output counts as dark.
func ThemeByName(name string, output *termenv.Output) (Theme, error) {
	switch name {
	case "dark":
		return DarkTheme, nil
	case "light":
		return LightTheme, nil
	case "auto", "":
		if output == nil || output.HasDarkBackground() {
			return DarkTheme, nil
		}
		return LightTheme, nil
	default:
		return Theme{}, fmt.Errorf("unknown theme %q", name)
	}
}
