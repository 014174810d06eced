// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package projection

import (
	"sort"
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/lifeline-foundation/lifeline/lib/record"
)

// Ranked is a record selected by fuzzy search.
type Ranked struct {
	Record record.Record

	// Score is fzf's match score; higher is better. Zero when the
	// query was empty.
	Score int

	// Field is the path whose text produced the best score.
	Field string

	// Positions are the rune offsets of matched characters in the
	// text of Field, for highlighting.
	Positions []int
}

// Rank fuzzy-matches query against the given field paths of every
// record and returns the matches best first. Records with equal scores
// keep store order. An empty query returns every record, unscored, in
// store order.
func Rank(records []record.Record, query string, fields ...string) []Ranked {
	pattern := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(pattern) == 0 {
		ranked := make([]Ranked, len(records))
		for i, candidate := range records {
			ranked[i] = Ranked{Record: candidate}
		}
		return ranked
	}

	slab := util.MakeSlab(slab16Size, slab32Size)
	var ranked []Ranked
	for _, candidate := range records {
		best := Ranked{Record: candidate}
		for _, field := range fields {
			score, positions := fuzzyMatch(candidate.Fields.Text(field), pattern, slab)
			if score > best.Score {
				best.Score = score
				best.Field = field
				best.Positions = positions
			}
		}
		if best.Score > 0 {
			ranked = append(ranked, best)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Slab sizes fzf itself uses for interactive matching.
const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

// fuzzyMatch runs fzf's V2 algorithm case-insensitively. pattern must
// already be lower case.
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) (int, []int) {
	if text == "" {
		return 0, nil
	}
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, pattern, true, slab)
	if result.Start < 0 || result.Score <= 0 {
		return 0, nil
	}
	if positions == nil {
		return result.Score, nil
	}
	offsets := append([]int(nil), (*positions)...)
	sort.Ints(offsets)
	return result.Score, offsets
}
