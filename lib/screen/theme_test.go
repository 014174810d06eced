// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import "testing"

func TestThemeByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"dark", "dark"},
		{"light", "light"},
		{"auto", "dark"},
		{"", "dark"},
	}
	for _, test := range tests {
		theme, err := ThemeByName(test.name, nil)
		if err != nil {
			t.Errorf("ThemeByName(%q): %v", test.name, err)
			continue
		}
		if theme.Name != test.want {
			t.Errorf("ThemeByName(%q) = %q, want %q", test.name, theme.Name, test.want)
		}
	}

	if _, err := ThemeByName("solarized", nil); err == nil {
		t.Error("unknown theme accepted")
	}
}

func TestToggle(t *testing.T) {
	if DarkTheme.Toggle().Name != "light" || LightTheme.Toggle().Name != "dark" {
		t.Fatal("Toggle does not swap dark and light")
	}
}
