// Package cues tracks the caption cues observed during one capture
// attempt: which cue ids have been seen, the text captured for each,
// the furthest timestamp reached, and a completion estimate for
// progress reporting. A Set belongs to exactly one driver invocation
// and is discarded when the attempt ends.
package cues

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mvanhorn/capscribe/internal/texttool"
)

// Cue is one captured transcript entry.
type Cue struct {
	ID      string
	Seconds int // leading timestamp, 0 when the cue has none
	Text    string
}

// Set maps cue ids to their captured text. Keys are only ever added;
// re-adding a known id is a no-op, which makes repeated scan passes
// over the same DOM idempotent and the segment count monotone.
type Set struct {
	cues  map[string]Cue
	order []string // ids in first-seen order, stable-sort tiebreak
}

// NewSet returns an empty cue set.
func NewSet() *Set {
	return &Set{cues: make(map[string]Cue)}
}

// Add records a cue unless its id has been seen before. Reports
// whether the cue was new.
func (s *Set) Add(id, text string) bool {
	if _, ok := s.cues[id]; ok {
		return false
	}

	secs := 0
	if ts, ok := texttool.LeadingTimestamp(text); ok {
		secs = texttool.ParseTimestamp(ts)
	}

	s.cues[id] = Cue{ID: id, Seconds: secs, Text: text}
	s.order = append(s.order, id)
	return true
}

// Len returns the number of distinct cues captured so far.
func (s *Set) Len() int {
	return len(s.cues)
}

// Sorted returns the cues ordered by the numeric suffix of their ids,
// so "transcript-cue-2" sorts before "transcript-cue-10". Ids without
// a numeric suffix keep their first-seen position.
func (s *Set) Sorted() []Cue {
	ids := make([]string, len(s.order))
	copy(ids, s.order)

	sort.SliceStable(ids, func(i, j int) bool {
		a, aok := numericSuffix(ids[i])
		b, bok := numericSuffix(ids[j])
		if !aok || !bok {
			return false
		}
		return a < b
	})

	out := make([]Cue, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cues[id])
	}
	return out
}

// SortedText joins the sorted cue texts with newlines, the raw input
// to the formatting pass.
func (s *Set) SortedText() string {
	sorted := s.Sorted()
	texts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n")
}

// numericSuffix parses the digits after the last '-' in a cue id.
func numericSuffix(id string) (int, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 || i == len(id)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
