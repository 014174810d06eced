// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Action is something a role may be allowed to do to a collection.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Rules lists the roles allowed to perform each action. An action
// missing from the map is allowed to nobody.
type Rules map[Action][]account.Role

// Column is one field shown when a collection is listed.
type Column struct {
	Header string
	Field  string

	// Numeric columns hold numbers; entry forms parse them as such.
	Numeric bool
}

// Collection describes one synced collection.
type Collection struct {
	// Name is the short name used on the command line ("alerts").
	Name string

	// Path is the feed path holding the records ("emergency_alerts").
	Path string

	// Title is the screen heading.
	Title string

	// Fields are the top-level field names a record may carry.
	Fields []string

	// SearchFields are the dotted paths the search box matches.
	SearchFields []string

	Columns []Column
	Rules   Rules

	newContent func() any
}

// Validate checks that fields form a complete, well-formed record for
// this collection. It returns a *ValidationError on failure.
func (c Collection) Validate(fields record.Fields) error {
	return check(c.Name, fields, c.Fields, c.newContent())
}

// Allows reports whether role may perform action on this collection.
func (c Collection) Allows(role account.Role, action Action) bool {
	return slices.Contains(c.Rules[action], role)
}

// FieldsFromText builds a field set from text keyed by column field
// path, as typed into a form or given on the command line. Numeric
// columns are parsed as numbers; blank values are left out so that
// Validate reports them as missing.
func (c Collection) FieldsFromText(values map[string]string) (record.Fields, error) {
	numeric := make(map[string]bool, len(c.Columns))
	for _, column := range c.Columns {
		numeric[column.Field] = column.Numeric
	}
	fields := record.Fields{}
	for path, text := range values {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !numeric[path] {
			fields.Set(path, text)
			continue
		}
		number, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", path, text)
		}
		fields.Set(path, number)
	}
	return fields, nil
}

var everyone = []account.Role{account.RoleAdmin, account.RoleUser}
var adminsOnly = []account.Role{account.RoleAdmin}

var (
	// Alerts are emergencies reported by any signed-in user.
	Alerts = Collection{
		Name:         "alerts",
		Path:         "emergency_alerts",
		Title:        "Emergency alerts",
		Fields:       []string{"type", "location"},
		SearchFields: []string{"type"},
		Columns: []Column{
			{Header: "Type", Field: "type"},
			{Header: "Latitude", Field: "location.latitude", Numeric: true},
			{Header: "Longitude", Field: "location.longitude", Numeric: true},
		},
		Rules: Rules{
			ActionView:   everyone,
			ActionCreate: everyone,
			ActionDelete: everyone,
		},
		newContent: func() any { return &AlertContent{} },
	}

	// MissingPersons are reports anyone may file; only admins close
	// them.
	MissingPersons = Collection{
		Name:         "missing-persons",
		Path:         "missing-persons",
		Title:        "Missing persons",
		Fields:       []string{"name", "location", "description"},
		SearchFields: []string{"name", "location"},
		Columns: []Column{
			{Header: "Name", Field: "name"},
			{Header: "Last seen", Field: "location"},
			{Header: "Description", Field: "description"},
		},
		Rules: Rules{
			ActionView:   everyone,
			ActionCreate: everyone,
			ActionDelete: adminsOnly,
		},
		newContent: func() any { return &MissingPersonContent{} },
	}

	// Users is the user directory, visible to admins only.
	Users = Collection{
		Name:         "users",
		Path:         "users",
		Title:        "Users",
		Fields:       []string{"username", "email"},
		SearchFields: []string{"username", "email"},
		Columns: []Column{
			{Header: "Username", Field: "username"},
			{Header: "Email", Field: "email"},
		},
		Rules: Rules{
			ActionView:   adminsOnly,
			ActionCreate: adminsOnly,
			ActionDelete: adminsOnly,
		},
		newContent: func() any { return &UserContent{} },
	}
)

// All returns every collection in menu order.
func All() []Collection {
	return []Collection{Alerts, MissingPersons, Users}
}

// Lookup finds a collection by name or feed path. A leading slash on
// the path is ignored.
func Lookup(nameOrPath string) (Collection, bool) {
	key := strings.TrimPrefix(nameOrPath, "/")
	for _, collection := range All() {
		if collection.Name == key || collection.Path == key {
			return collection, true
		}
	}
	return Collection{}, false
}

// Visible returns the collections role may view.
func Visible(role account.Role) []Collection {
	var visible []Collection
	for _, collection := range All() {
		if collection.Allows(role, ActionView) {
			visible = append(visible, collection)
		}
	}
	return visible
}
