// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// AlertContent is an emergency alert raised from the field.
type AlertContent struct {
	// Type is the kind of emergency ("fire", "flood", "medical").
	Type string `json:"type" validate:"required"`

	Location *Coordinates `json:"location" validate:"required"`
}

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// MissingPersonContent is a report of a person who cannot be found.
type MissingPersonContent struct {
	Name string `json:"name" validate:"required"`

	// Location is where the person was last seen, as free text.
	Location string `json:"location" validate:"required"`

	Description string `json:"description" validate:"required"`
}

// UserContent is an entry in the user directory.
type UserContent struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}
