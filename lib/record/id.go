// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/lifeline-foundation/lifeline/lib/clock"
)

// IDGenerator mints record IDs. It is safe for concurrent use.
type IDGenerator struct {
	clock clock.Clock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMS  uint64
}

// NewIDGenerator returns a generator reading time from c.
func NewIDGenerator(c clock.Clock) *IDGenerator {
	return &IDGenerator{
		clock:   c,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New returns an ID greater than every ID this generator returned
// before, even when the clock stands still or steps backwards.
func (g *IDGenerator) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.clock.Now())
	if ms < g.lastMS {
		ms = g.lastMS
	}
	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", fmt.Errorf("minting record id: %w", err)
	}
	g.lastMS = ms
	return id.String(), nil
}

// maxIDLength bounds IDs accepted from peers and seed files.
const maxIDLength = 128

// ValidID reports whether id can key a record. Lifeline mints ULIDs,
// but collections imported from elsewhere carry other keys (decimal
// millisecond timestamps, push IDs), so any non-empty key without path
// or control characters is accepted.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, character := range id {
		switch {
		case character < 0x20 || character == 0x7f:
			return false
		case strings.ContainsRune("./#$[]", character):
			return false
		}
	}
	return true
}
