// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package account models the signed-in user that screens and the feed
// service consult to decide which actions to offer or accept.
//
// A User is a plain value passed to whoever needs it. Changing the
// role (the drawer toggle in the mobile client) produces a new User
// rather than mutating shared state.
package account

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// emailCheck applies the same "email" rule the users collection uses.
var emailCheck = validator.New()

// Role is the coarse permission level of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole accepts "admin" or "user" in any case.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role %q (want %q or %q)", value, RoleAdmin, RoleUser)
}

// User is the identity a client acts as.
type User struct {
	Username string `json:"username" cbor:"username"`
	Email    string `json:"email" cbor:"email"`
	Role     Role   `json:"role" cbor:"role"`
}

// IsAdmin reports whether u holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// WithRole returns a copy of u holding role.
func (u User) WithRole(role Role) User {
	u.Role = role
	return u
}

// ToggleRole flips between admin and user.
func (u User) ToggleRole() User {
	if u.IsAdmin() {
		return u.WithRole(RoleUser)
	}
	return u.WithRole(RoleAdmin)
}

// Directory maps sign-in emails to roles.
type Directory struct {
	adminEmails []string
}

// NewDirectory returns a Directory granting admin to the given emails.
// Comparison ignores case and surrounding whitespace.
func NewDirectory(adminEmails []string) *Directory {
	normalized := make([]string, 0, len(adminEmails))
	for _, email := range adminEmails {
		normalized = append(normalized, normalizeEmail(email))
	}
	return &Directory{adminEmails: normalized}
}

// RoleFor returns the role an email signs in with.
func (d *Directory) RoleFor(email string) Role {
	if slices.Contains(d.adminEmails, normalizeEmail(email)) {
		return RoleAdmin
	}
	return RoleUser
}

// SignIn builds the User for an email. The username defaults to the
// local part of the address.
func (d *Directory) SignIn(email string) (User, error) {
	address := strings.TrimSpace(email)
	if err := emailCheck.Var(address, "required,email"); err != nil {
		return User{}, fmt.Errorf("signing in %q: not a plain email address", email)
	}
	username, _, _ := strings.Cut(address, "@")
	return User{
		Username: username,
		Email:    address,
		Role:     d.RoleFor(address),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
