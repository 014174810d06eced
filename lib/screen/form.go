// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// openForm shows one input per column of the collection.
func (model *Model) openForm() tea.Cmd {
	model.form = make([]textinput.Model, len(model.collection.Columns))
	for i, column := range model.collection.Columns {
		input := textinput.New()
		input.Prompt = ""
		input.Placeholder = strings.ToLower(column.Header)
		input.CharLimit = 256
		model.form[i] = input
	}
	if len(model.form) == 0 {
		model.form = nil
		return nil
	}
	model.mode = modeForm
	model.field = 0
	model.status = ""
	model.applyTheme()
	return model.form[0].Focus()
}

func (model *Model) focusField(index int) tea.Cmd {
	model.form[model.field].Blur()
	model.field = (index + len(model.form)) % len(model.form)
	return model.form[model.field].Focus()
}

func (model Model) updateForm(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Back):
		model.mode = modeList
		model.form = nil
		return model, nil

	case key.Matches(message, model.keys.NextField):
		return model, model.focusField(model.field + 1)

	case key.Matches(message, model.keys.PreviousField):
		return model, model.focusField(model.field - 1)

	case key.Matches(message, model.keys.Submit):
		if model.field < len(model.form)-1 {
			return model, model.focusField(model.field + 1)
		}
		return model.submitForm()
	}

	var command tea.Cmd
	model.form[model.field], command = model.form[model.field].Update(message)
	return model, command
}

// submitForm validates the entered fields and creates the record. On
// failure the form stays open with the problem in the status line.
func (model Model) submitForm() (tea.Model, tea.Cmd) {
	values := make(map[string]string, len(model.form))
	for i, column := range model.collection.Columns {
		values[column.Field] = model.form[i].Value()
	}
	fields, err := model.collection.FieldsFromText(values)
	if err == nil {
		err = model.collection.Validate(fields)
	}
	if err != nil {
		model.setError(err)
		return model, nil
	}

	id, err := model.session.Create(fields)
	if err != nil {
		model.setError(err)
		return model, nil
	}
	model.mode = modeList
	model.form = nil
	model.refresh()
	model.selectID(id)
	model.setStatus("saving " + id)
	return model, nil
}

func (model Model) renderForm() string {
	labelWidth := 0
	for _, column := range model.collection.Columns {
		labelWidth = max(labelWidth, ansi.StringWidth(column.Header))
	}

	lines := []string{
		lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true).
			Render("New " + strings.ToLower(strings.TrimSuffix(model.collection.Title, "s"))),
	}
	for i, column := range model.collection.Columns {
		labelStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		if i == model.field {
			labelStyle = lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true)
		}
		label := labelStyle.Render(column.Header + ":" + strings.Repeat(" ", labelWidth-ansi.StringWidth(column.Header)+1))
		lines = append(lines, ansi.Truncate("  "+label+model.form[i].View(), model.width, ""))
	}
	for len(lines) < model.bodyHeight() {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
