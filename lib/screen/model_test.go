// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/collection"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
)

// fakeSession is a Session over a plain store that applies every
// mutation at once and remembers it as pending.
type fakeSession struct {
	store   *collection.Store
	state   livesync.State
	pending map[string]livesync.Mutation
	created []record.Fields
	deleted []string
	nextID  int
}

func newFakeSession(records ...record.Record) *fakeSession {
	store := collection.NewStore()
	store.ReplaceAll(records)
	return &fakeSession{store: store, state: livesync.StateLive, pending: make(map[string]livesync.Mutation)}
}

func (f *fakeSession) Snapshot() collection.Snapshot { return f.store.Snapshot() }

func (f *fakeSession) Subscribe() (<-chan collection.Change, func()) { return f.store.Subscribe() }

func (f *fakeSession) State() livesync.State { return f.state }

func (f *fakeSession) Pending(id string) (livesync.Mutation, bool) {
	mutation, ok := f.pending[id]
	return mutation, ok
}

func (f *fakeSession) PendingCount() int { return len(f.pending) }

func (f *fakeSession) Create(fields record.Fields) (string, error) {
	f.nextID++
	id := fmt.Sprintf("new-%d", f.nextID)
	f.created = append(f.created, fields)
	f.pending[id] = livesync.Mutation{ID: id, Kind: livesync.MutationCreate}
	f.store.Put(record.Record{ID: id, Fields: fields})
	return id, nil
}

func (f *fakeSession) Delete(id string) error {
	if _, ok := f.store.Remove(id); !ok {
		return livesync.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

var (
	regularUser = account.User{Username: "ana", Email: "ana@example.org", Role: account.RoleUser}
	adminUser   = account.User{Username: "root", Email: "root@example.org", Role: account.RoleAdmin}
)

func alert(id, kind string, latitude, longitude float64) record.Record {
	return record.Record{ID: id, Fields: record.Fields{
		"type":     kind,
		"location": map[string]any{"latitude": latitude, "longitude": longitude},
	}}
}

func person(id, name, location string) record.Record {
	return record.Record{ID: id, Fields: record.Fields{
		"name": name, "location": location, "description": "last seen at noon",
	}}
}

func newScreen(t *testing.T, config Config) Model {
	t.Helper()
	model := New(config)
	t.Cleanup(model.Stop)
	return send(model, tea.WindowSizeMsg{Width: 80, Height: 16})
}

func send(model Model, messages ...tea.Msg) Model {
	for _, message := range messages {
		next, _ := model.Update(message)
		model = next.(Model)
	}
	return model
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

// typeText sends text one key at a time.
func typeText(model Model, text string) Model {
	for _, r := range text {
		model = send(model, runes(string(r)))
	}
	return model
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
)

func rowIDs(model Model) []string {
	ids := make([]string, len(model.rows))
	for i, current := range model.rows {
		ids[i] = current.record.ID
	}
	return ids
}

func TestViewWaitsForWindowSize(t *testing.T) {
	model := New(Config{Session: newFakeSession(), Collection: schema.Alerts, User: regularUser})
	defer model.Stop()
	if got := model.View(); got != "Loading..." {
		t.Fatalf("View before size = %q", got)
	}
}

func TestListFollowsStore(t *testing.T) {
	session := newFakeSession(alert("a1", "fire", 1, 2), alert("a2", "flood", 3, 4))
	model := newScreen(t, Config{Session: session, Collection: schema.Alerts, User: regularUser})

	view := model.View()
	for _, want := range []string{"Emergency alerts", "live", "fire", "flood", "Latitude", "ana@example.org (user)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	session.store.Put(alert("a3", "landslide", 5, 6))
	model = send(model, changeMsg{})
	if !strings.Contains(model.View(), "landslide") {
		t.Fatalf("view missed the new record:\n%s", model.View())
	}

	session.state = livesync.StateStale
	model = send(model, stateTickMsg{})
	if !strings.Contains(model.View(), "stale, reconnecting") {
		t.Fatalf("state badge not refreshed:\n%s", model.View())
	}
}

func TestEmptyCollectionMessage(t *testing.T) {
	model := newScreen(t, Config{Session: newFakeSession(), Collection: schema.Alerts, User: regularUser})
	if !strings.Contains(model.View(), "No records yet") {
		t.Fatalf("empty view:\n%s", model.View())
	}
}

func TestCursorKeepsSelectedRecord(t *testing.T) {
	session := newFakeSession(alert("b", "fire", 1, 1), alert("c", "flood", 1, 1))
	model := newScreen(t, Config{Session: session, Collection: schema.Alerts, User: regularUser})

	model = send(model, runes("j"))
	if model.cursor != 1 {
		t.Fatalf("cursor after j = %d", model.cursor)
	}
	model = send(model, runes("j"))
	if model.cursor != 1 {
		t.Fatalf("cursor moved past the last row: %d", model.cursor)
	}

	session.store.Insert(0, alert("a", "storm", 1, 1))
	model = send(model, changeMsg{})
	if selected, _ := model.selected(); selected.record.ID != "c" {
		t.Fatalf("selection moved to %q after insert above it", selected.record.ID)
	}

	model = send(model, runes("g"))
	if model.cursor != 0 {
		t.Fatalf("cursor after g = %d", model.cursor)
	}
	model = send(model, runes("G"))
	if model.cursor != 2 {
		t.Fatalf("cursor after G = %d", model.cursor)
	}
}

func TestScrollFollowsCursor(t *testing.T) {
	var records []record.Record
	for i := range 30 {
		records = append(records, alert(fmt.Sprintf("a%02d", i), fmt.Sprintf("kind-%02d", i), 1, 1))
	}
	model := newScreen(t, Config{Session: newFakeSession(records...), Collection: schema.Alerts, User: regularUser})

	model = send(model, runes("G"))
	view := model.View()
	if !strings.Contains(view, "kind-29") {
		t.Fatalf("last row not visible after G:\n%s", view)
	}
	if strings.Contains(view, "kind-00") {
		t.Fatalf("first row still visible after G:\n%s", view)
	}
	if lines := strings.Count(view, "\n") + 1; lines != 16 {
		t.Fatalf("view has %d lines, want the window height 16", lines)
	}
}

func TestSearchNarrowsRows(t *testing.T) {
	session := newFakeSession(
		person("p1", "Maria Lopez", "Harbor"),
		person("p2", "John Smith", "Market"),
		person("p3", "Mario Rossi", "Harbor bridge"),
	)
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: regularUser})

	model = send(model, runes("/"))
	model = typeText(model, "mar")
	if got := rowIDs(model); strings.Join(got, ",") != "p1,p2,p3" {
		t.Fatalf("rows for %q = %v", "mar", got)
	}
	model = typeText(model, "i")
	if got := rowIDs(model); strings.Join(got, ",") != "p1,p3" {
		t.Fatalf("rows for %q = %v", "mari", got)
	}

	// Enter keeps the filter; Esc in the list clears it.
	model = send(model, enter)
	if model.mode != modeList || len(model.rows) != 2 {
		t.Fatalf("after enter: mode %d, %d rows", model.mode, len(model.rows))
	}
	if !strings.Contains(model.View(), "mari") {
		t.Fatalf("active query not shown:\n%s", model.View())
	}
	model = send(model, esc)
	if len(model.rows) != 3 {
		t.Fatalf("rows after clearing = %d", len(model.rows))
	}

	model = send(model, runes("/"))
	model = typeText(model, "zzz")
	if !strings.Contains(model.View(), `No matches for "zzz"`) {
		t.Fatalf("no-match view:\n%s", model.View())
	}
	model = send(model, esc)
	if model.mode != modeList || len(model.rows) != 3 {
		t.Fatalf("esc in search: mode %d, %d rows", model.mode, len(model.rows))
	}
}

func TestSearchKeysDoNotTriggerCommands(t *testing.T) {
	session := newFakeSession(person("p1", "Dana", "Quay"))
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: adminUser})

	model = send(model, runes("/"))
	model = typeText(model, "dnq")
	if model.mode != modeSearch {
		t.Fatalf("typing in search left mode %d", model.mode)
	}
	if len(session.deleted) != 0 {
		t.Fatal("typing d in the search box deleted a record")
	}
}

func TestFuzzySearchRanksBestFirst(t *testing.T) {
	session := newFakeSession(
		person("p1", "Fieldman", "x"),
		person("p2", "Ed Fld", "x"),
		person("p3", "Nobody", "x"),
	)
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: regularUser, Fuzzy: true})

	model = send(model, runes("/"))
	model = typeText(model, "fld")
	ids := rowIDs(model)
	if len(ids) != 2 || ids[0] != "p2" {
		t.Fatalf("fuzzy rows = %v, want p2 first and p3 dropped", ids)
	}
}

func TestDeleteNeedsRoleAndConfirmation(t *testing.T) {
	records := []record.Record{person("p1", "Dana", "Quay"), person("p2", "Eli", "Pier")}

	session := newFakeSession(records...)
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: regularUser})
	model = send(model, runes("d"))
	if model.mode != modeList {
		t.Fatal("user opened a delete prompt on an admin-only collection")
	}
	if strings.Contains(model.View(), "delete") {
		t.Fatalf("help offers delete to a user:\n%s", model.View())
	}

	session = newFakeSession(records...)
	model = newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: adminUser})
	model = send(model, runes("d"))
	if !strings.Contains(model.View(), "Delete Dana (p1)? y/n") {
		t.Fatalf("confirmation prompt missing:\n%s", model.View())
	}
	model = send(model, runes("n"))
	if len(session.deleted) != 0 || model.mode != modeList {
		t.Fatalf("cancel deleted %v", session.deleted)
	}

	model = send(model, runes("d"), runes("y"))
	if len(session.deleted) != 1 || session.deleted[0] != "p1" {
		t.Fatalf("deleted = %v, want [p1]", session.deleted)
	}
	if !strings.Contains(model.View(), "deleting p1") {
		t.Fatalf("status missing:\n%s", model.View())
	}
}

func TestDeleteOfVanishedRecordShowsError(t *testing.T) {
	session := newFakeSession(alert("a1", "fire", 1, 1))
	model := newScreen(t, Config{Session: session, Collection: schema.Alerts, User: regularUser})

	model = send(model, runes("d"))
	session.store.Remove("a1")
	model = send(model, runes("y"))
	if !model.statusError || !strings.Contains(model.status, "not found") {
		t.Fatalf("status = %q (error %v)", model.status, model.statusError)
	}
}

func TestCreateFromForm(t *testing.T) {
	session := newFakeSession()
	model := newScreen(t, Config{Session: session, Collection: schema.Alerts, User: regularUser})

	model = send(model, runes("n"))
	if model.mode != modeForm {
		t.Fatalf("mode after n = %d", model.mode)
	}
	if !strings.Contains(model.View(), "New emergency alert") {
		t.Fatalf("form heading missing:\n%s", model.View())
	}
	model = typeText(model, "storm")
	model = send(model, tab)
	model = typeText(model, "12.5")
	model = send(model, tab)
	model = typeText(model, "-3")
	model = send(model, enter)

	if model.mode != modeList {
		t.Fatalf("form still open: %s", model.status)
	}
	if len(session.created) != 1 {
		t.Fatalf("created %d records", len(session.created))
	}
	fields := session.created[0]
	if fields.Text("type") != "storm" {
		t.Errorf("type = %q", fields.Text("type"))
	}
	if value, _ := fields.Lookup("location.latitude"); value != 12.5 {
		t.Errorf("latitude = %#v, want 12.5", value)
	}
	if value, _ := fields.Lookup("location.longitude"); value != -3.0 {
		t.Errorf("longitude = %#v, want -3", value)
	}

	view := model.View()
	if !strings.Contains(view, "… storm") {
		t.Fatalf("new record not marked pending:\n%s", view)
	}
	if !strings.Contains(view, "1 saving") {
		t.Fatalf("pending count missing:\n%s", view)
	}
	if selected, _ := model.selected(); selected.record.ID != "new-1" {
		t.Fatalf("selection = %q, want the new record", selected.record.ID)
	}
}

func TestFormRejectsInvalidInput(t *testing.T) {
	session := newFakeSession()
	model := newScreen(t, Config{Session: session, Collection: schema.Alerts, User: regularUser})

	model = send(model, runes("n"), enter, enter, enter)
	if model.mode != modeForm || !model.statusError {
		t.Fatalf("blank form: mode %d, status %q", model.mode, model.status)
	}
	if len(session.created) != 0 {
		t.Fatal("blank form created a record")
	}

	model = send(model, esc, runes("n"))
	model = typeText(model, "fire")
	model = send(model, tab)
	model = typeText(model, "north")
	model = send(model, tab)
	model = typeText(model, "1")
	model = send(model, enter)
	if !strings.Contains(model.status, "not a number") {
		t.Fatalf("status = %q", model.status)
	}

	model = send(model, esc)
	if model.mode != modeList || len(session.created) != 0 {
		t.Fatalf("esc: mode %d, created %d", model.mode, len(session.created))
	}
}

func TestCreateHiddenWithoutRole(t *testing.T) {
	model := newScreen(t, Config{Session: newFakeSession(), Collection: schema.Users, User: regularUser})
	model = send(model, runes("n"))
	if model.mode != modeList {
		t.Fatal("user opened the users entry form")
	}
}

func TestErrorMessageShown(t *testing.T) {
	model := newScreen(t, Config{Session: newFakeSession(), Collection: schema.Alerts, User: regularUser})
	model = send(model, ErrorMsg{Err: errors.New("write rejected: permission denied")})
	if !strings.Contains(model.View(), "write rejected: permission denied") {
		t.Fatalf("error not shown:\n%s", model.View())
	}
	model = send(model, runes("j"))
	if model.status != "" {
		t.Fatalf("status survived a key press: %q", model.status)
	}
}

func TestToggleThemeAndQuit(t *testing.T) {
	model := newScreen(t, Config{Session: newFakeSession(), Collection: schema.Alerts, User: regularUser, Theme: DarkTheme})
	model = send(model, runes("t"))
	if model.theme.Name != LightTheme.Name {
		t.Fatalf("theme after t = %q", model.theme.Name)
	}

	_, command := model.Update(runes("q"))
	if command == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}

func TestViewFitsNarrowWindow(t *testing.T) {
	session := newFakeSession(
		person("p1", "A very long name that will never fit", "Somewhere far away"),
	)
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: adminUser})
	model = send(model, tea.WindowSizeMsg{Width: 30, Height: 10})

	for _, line := range strings.Split(model.View(), "\n") {
		if width := ansi.StringWidth(line); width > 30 {
			t.Errorf("line %q is %d cells wide", line, width)
		}
	}
}

func TestHelpLineFitsEveryMode(t *testing.T) {
	session := newFakeSession(person("p1", "Ama", "Accra"))
	model := newScreen(t, Config{Session: session, Collection: schema.MissingPersons, User: adminUser})
	model = send(model, tea.WindowSizeMsg{Width: 20, Height: 12})

	modes := map[string]Model{
		"list":    model,
		"confirm": send(model, runes("d")),
		"form":    send(model, runes("n")),
	}
	for name, current := range modes {
		if width := ansi.StringWidth(current.renderHelp()); width > 20 {
			t.Errorf("%s help is %d cells wide, want at most 20", name, width)
		}
	}
}
