// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/collection"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/projection"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

var _ Session = (*livesync.Session)(nil)

// Session is the part of a sync session a screen uses.
type Session interface {
	Snapshot() collection.Snapshot
	Subscribe() (<-chan collection.Change, func())
	State() livesync.State
	Pending(id string) (livesync.Mutation, bool)
	PendingCount() int
	Create(fields record.Fields) (string, error)
	Delete(id string) error
}

// Config holds what a screen shows and for whom.
type Config struct {
	Session    Session
	Collection schema.Collection
	User       account.User
	Theme      Theme

	// Keys defaults to DefaultKeyMap.
	Keys *KeyMap

	// Fuzzy ranks search results best first with fzf scoring instead
	// of filtering by substring in store order.
	Fuzzy bool
}

// ErrorMsg delivers an asynchronous sync error, such as a rejected
// write, to a running screen. Send it with tea.Program.Send.
type ErrorMsg struct {
	Err error
}

type changeMsg struct{}

type stateTickMsg struct{}

type mode int

const (
	modeList mode = iota
	modeSearch
	modeConfirm
	modeForm
)

const stateRefreshInterval = time.Second

// chromeLines counts the header, search, status and help lines.
const chromeLines = 4

// Model is the bubbletea model of one collection screen.
type Model struct {
	session    Session
	collection schema.Collection
	user       account.User
	theme      Theme
	keys       KeyMap
	fuzzy      bool

	changes     <-chan collection.Change
	unsubscribe func()

	mode   mode
	search textinput.Model
	form   []textinput.Model
	field  int
	help   help.Model

	rows         []row
	cursor       int
	scrollOffset int
	confirmID    string

	status      string
	statusError bool

	width  int
	height int
	ready  bool
}

type row struct {
	record  record.Record
	pending bool
}

// New builds a screen for config and subscribes to the session's
// store. Call Stop when the program ends.
func New(config Config) Model {
	keys := DefaultKeyMap
	if config.Keys != nil {
		keys = *config.Keys
	}
	if config.Theme.Name == "" {
		config.Theme = DarkTheme
	}
	keys.New.SetEnabled(config.Collection.Allows(config.User.Role, schema.ActionCreate))
	keys.Delete.SetEnabled(config.Collection.Allows(config.User.Role, schema.ActionDelete))

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search " + strings.Join(config.Collection.SearchFields, ", ")
	search.CharLimit = 128

	changes, unsubscribe := config.Session.Subscribe()
	model := Model{
		session:     config.Session,
		collection:  config.Collection,
		user:        config.User,
		theme:       config.Theme,
		keys:        keys,
		fuzzy:       config.Fuzzy,
		changes:     changes,
		unsubscribe: unsubscribe,
		search:      search,
		help:        help.New(),
	}
	model.applyTheme()
	model.refresh()
	return model
}

// Stop ends the store subscription.
func (model Model) Stop() {
	model.unsubscribe()
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(waitForChange(model.changes), scheduleStateTick())
}

// waitForChange blocks until the store changes.
func waitForChange(changes <-chan collection.Change) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changeMsg{}
	}
}

// scheduleStateTick re-reads session state that changes without a
// store write, such as the connection badge and pending marks.
func scheduleStateTick() tea.Cmd {
	return tea.Tick(stateRefreshInterval, func(time.Time) tea.Msg {
		return stateTickMsg{}
	})
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.help.Width = message.Width
		model.search.Width = max(message.Width-len(model.search.Prompt)-1, 1)
		model.ensureCursorVisible()

	case changeMsg:
		model.refresh()
		return model, waitForChange(model.changes)

	case stateTickMsg:
		model.refresh()
		return model, scheduleStateTick()

	case ErrorMsg:
		model.setError(message.Err)

	case tea.KeyMsg:
		switch model.mode {
		case modeSearch:
			return model.updateSearch(message)
		case modeConfirm:
			return model.updateConfirm(message)
		case modeForm:
			return model.updateForm(message)
		}
		return model.updateList(message)
	}
	return model, nil
}

func (model Model) updateList(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	model.status = ""
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)

	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)

	case key.Matches(message, model.keys.Home):
		model.cursor = 0

	case key.Matches(message, model.keys.End):
		model.cursor = max(len(model.rows)-1, 0)

	case key.Matches(message, model.keys.Search):
		model.mode = modeSearch
		model.ensureCursorVisible()
		return model, model.search.Focus()

	case key.Matches(message, model.keys.ClearSearch):
		if model.search.Value() != "" {
			model.search.SetValue("")
			model.refresh()
		}

	case key.Matches(message, model.keys.New):
		return model, model.openForm()

	case key.Matches(message, model.keys.Delete):
		if selected, ok := model.selected(); ok {
			model.mode = modeConfirm
			model.confirmID = selected.record.ID
		}

	case key.Matches(message, model.keys.ToggleTheme):
		model.theme = model.theme.Toggle()
		model.applyTheme()
	}
	model.ensureCursorVisible()
	return model, nil
}

func (model Model) updateSearch(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit
	case tea.KeyEsc:
		model.search.SetValue("")
		model.search.Blur()
		model.mode = modeList
		model.refresh()
		return model, nil
	case tea.KeyEnter:
		model.search.Blur()
		model.mode = modeList
		return model, nil
	case tea.KeyUp:
		model.moveCursor(-1)
		model.ensureCursorVisible()
		return model, nil
	case tea.KeyDown:
		model.moveCursor(1)
		model.ensureCursorVisible()
		return model, nil
	}

	before := model.search.Value()
	var command tea.Cmd
	model.search, command = model.search.Update(message)
	if model.search.Value() != before {
		model.refresh()
		model.cursor = 0
		model.scrollOffset = 0
	}
	return model, command
}

func (model Model) updateConfirm(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case key.Matches(message, model.keys.Confirm):
		id := model.confirmID
		model.mode = modeList
		model.confirmID = ""
		if err := model.session.Delete(id); err != nil {
			model.setError(err)
		} else {
			model.setStatus("deleting " + id)
		}

	case key.Matches(message, model.keys.Cancel):
		model.mode = modeList
		model.confirmID = ""
	}
	return model, nil
}

// moveCursor moves the selection by delta rows, clamped to the table.
func (model *Model) moveCursor(delta int) {
	model.cursor = max(min(model.cursor+delta, len(model.rows)-1), 0)
}

func (model Model) selected() (row, bool) {
	if model.cursor < 0 || model.cursor >= len(model.rows) {
		return row{}, false
	}
	return model.rows[model.cursor], true
}

// refresh re-projects the store through the search query, keeping the
// selection on the same record when it is still visible.
func (model *Model) refresh() {
	var selectedID string
	if selected, ok := model.selected(); ok {
		selectedID = selected.record.ID
	}

	records := model.session.Snapshot().Records()
	query := model.search.Value()
	var visible []record.Record
	if model.fuzzy {
		for _, ranked := range projection.Rank(records, query, model.collection.SearchFields...) {
			visible = append(visible, ranked.Record)
		}
	} else {
		visible = projection.Project(records, projection.Substring(query, model.collection.SearchFields...))
	}

	model.rows = make([]row, len(visible))
	for i, candidate := range visible {
		_, pending := model.session.Pending(candidate.ID)
		model.rows[i] = row{record: candidate, pending: pending}
	}
	model.selectID(selectedID)
}

func (model *Model) selectID(id string) {
	if id != "" {
		for i, candidate := range model.rows {
			if candidate.record.ID == id {
				model.cursor = i
				model.ensureCursorVisible()
				return
			}
		}
	}
	model.moveCursor(0)
	model.ensureCursorVisible()
}

func (model *Model) setStatus(text string) {
	model.status = text
	model.statusError = false
}

func (model *Model) setError(err error) {
	model.status = err.Error()
	model.statusError = true
}

// bodyHeight is the number of lines between the chrome: the column
// titles plus the visible rows, or the entry form.
func (model Model) bodyHeight() int {
	return max(model.height-chromeLines, 2)
}

func (model *Model) ensureCursorVisible() {
	visibleRows := model.bodyHeight() - 1
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visibleRows {
		model.scrollOffset = model.cursor - visibleRows + 1
	}
	model.scrollOffset = max(model.scrollOffset, 0)
}

func (model *Model) applyTheme() {
	theme := model.theme
	model.help.Styles.ShortKey = lipgloss.NewStyle().Foreground(theme.HeaderForeground)
	model.help.Styles.ShortDesc = lipgloss.NewStyle().Foreground(theme.HelpText)
	model.help.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(theme.BorderColor)
	model.help.Styles.FullKey = model.help.Styles.ShortKey
	model.help.Styles.FullDesc = model.help.Styles.ShortDesc
	model.help.Styles.FullSeparator = model.help.Styles.ShortSeparator
	model.help.Styles.Ellipsis = model.help.Styles.ShortSeparator

	model.search.PromptStyle = lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true)
	model.search.TextStyle = lipgloss.NewStyle().Foreground(theme.NormalText)
	model.search.PlaceholderStyle = lipgloss.NewStyle().Foreground(theme.FaintText)
	for i := range model.form {
		model.form[i].TextStyle = model.search.TextStyle
		model.form[i].PlaceholderStyle = model.search.PlaceholderStyle
	}
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	var body string
	if model.mode == modeForm {
		body = model.renderForm()
	} else {
		body = model.renderTable()
	}
	return strings.Join([]string{
		model.renderHeader(),
		model.renderSearch(),
		body,
		model.renderStatus(),
		model.renderHelp(),
	}, "\n")
}

func (model Model) renderHeader() string {
	title := lipgloss.NewStyle().Foreground(model.theme.HeaderForeground).Bold(true).Render(model.collection.Title)

	state := model.session.State()
	badgeColor := model.theme.StateWaiting
	switch state {
	case livesync.StateLive:
		badgeColor = model.theme.StateLive
	case livesync.StateStale, livesync.StateClosed:
		badgeColor = model.theme.StateStale
	}
	left := title + "  " + lipgloss.NewStyle().Foreground(badgeColor).Render(stateLabel(state))
	if pending := model.session.PendingCount(); pending > 0 {
		left += lipgloss.NewStyle().Foreground(model.theme.PendingText).Render(fmt.Sprintf("  %d saving", pending))
	}

	right := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(fmt.Sprintf("%s (%s)", model.user.Email, model.user.Role))
	gap := model.width - ansi.StringWidth(left) - ansi.StringWidth(right)
	if gap < 2 {
		return ansi.Truncate(left, model.width, "…")
	}
	return left + strings.Repeat(" ", gap) + right
}

func stateLabel(state livesync.State) string {
	switch state {
	case livesync.StateCached:
		return "offline copy"
	case livesync.StateStale:
		return "stale, reconnecting"
	default:
		return string(state)
	}
}

func (model Model) renderSearch() string {
	if model.mode != modeSearch && model.search.Value() == "" {
		return ""
	}
	return ansi.Truncate(model.search.View(), model.width, "")
}

// columnWidth splits the width after the two-column selection marker
// evenly across the collection's columns, two spaces apart.
func (model Model) columnWidth() int {
	columns := max(len(model.collection.Columns), 1)
	usable := model.width - 2 - 2*(columns-1)
	return max(usable/columns, 1)
}

func cell(text string, width int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	truncated := ansi.Truncate(text, width, "…")
	return truncated + strings.Repeat(" ", max(width-ansi.StringWidth(truncated), 0))
}

func (model Model) renderTable() string {
	width := model.columnWidth()
	lines := make([]string, 0, model.bodyHeight())

	titles := make([]string, len(model.collection.Columns))
	for i, column := range model.collection.Columns {
		titles[i] = cell(column.Header, width)
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.FaintText).Bold(true).
		Render("  "+strings.Join(titles, "  ")))

	visibleRows := model.bodyHeight() - 1
	if len(model.rows) == 0 {
		message := "No records yet"
		if query := model.search.Value(); query != "" {
			message = fmt.Sprintf("No matches for %q", query)
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.FaintText).
			Render(ansi.Truncate("  "+message, model.width, "…")))
	}

	end := min(model.scrollOffset+visibleRows, len(model.rows))
	for index := model.scrollOffset; index < end; index++ {
		current := model.rows[index]
		cells := make([]string, len(model.collection.Columns))
		for i, column := range model.collection.Columns {
			cells[i] = cell(current.record.Fields.Text(column.Field), width)
		}
		marker := "  "
		if current.pending {
			marker = "… "
		}
		line := marker + strings.Join(cells, "  ")

		style := lipgloss.NewStyle().Foreground(model.theme.NormalText)
		if current.pending {
			style = style.Foreground(model.theme.PendingText)
		}
		if index == model.cursor {
			style = style.Background(model.theme.SelectedBackground).
				Foreground(model.theme.SelectedForeground).
				Width(model.width)
		}
		lines = append(lines, style.Render(line))
	}

	for len(lines) < model.bodyHeight() {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderStatus() string {
	if model.mode == modeConfirm {
		label := model.confirmID
		if len(model.collection.Columns) > 0 {
			for _, candidate := range model.rows {
				if candidate.record.ID == model.confirmID {
					label = fmt.Sprintf("%s (%s)", candidate.record.Fields.Text(model.collection.Columns[0].Field), model.confirmID)
				}
			}
		}
		prompt := fmt.Sprintf("Delete %s? y/n", label)
		return lipgloss.NewStyle().Foreground(model.theme.ErrorText).Bold(true).
			Render(ansi.Truncate(prompt, model.width, "…"))
	}
	if model.status == "" {
		return ""
	}
	color := model.theme.FaintText
	if model.statusError {
		color = model.theme.ErrorText
	}
	return lipgloss.NewStyle().Foreground(color).Render(ansi.Truncate(model.status, model.width, "…"))
}

// renderHelp cuts the help line to the window; help.Model keeps adding
// items past its Width when the ellipsis itself does not fit.
func (model Model) renderHelp() string {
	var line string
	switch model.mode {
	case modeForm:
		line = model.help.View(formHelp{keys: &model.keys})
	case modeConfirm:
		line = model.help.ShortHelpView([]key.Binding{model.keys.Confirm, model.keys.Cancel})
	default:
		line = model.help.View(listHelp{keys: &model.keys})
	}
	return ansi.Truncate(line, model.width, "…")
}
