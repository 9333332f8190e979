package cues

import (
	"strings"
	"testing"
)

func TestSet_DuplicateAddIsNoOp(t *testing.T) {
	s := NewSet()

	if !s.Add("transcript-cue-1", "0:01\nHello") {
		t.Fatal("first Add returned false")
	}
	if s.Add("transcript-cue-1", "0:01\nHello") {
		t.Error("second Add of same id returned true")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSet_DuplicateDoesNotReorder(t *testing.T) {
	s := NewSet()
	s.Add("transcript-cue-1", "first")
	s.Add("transcript-cue-2", "second")
	s.Add("transcript-cue-1", "overwrite attempt")

	sorted := s.Sorted()
	if sorted[0].Text != "first" || sorted[1].Text != "second" {
		t.Errorf("order disturbed: %+v", sorted)
	}
}

func TestSet_SortsByNumericSuffix(t *testing.T) {
	s := NewSet()
	s.Add("transcript-cue-10", "tenth")
	s.Add("transcript-cue-2", "second")
	s.Add("transcript-cue-1", "first")

	got := s.SortedText()
	want := "first\nsecond\ntenth"
	if got != want {
		t.Errorf("SortedText = %q, want %q", got, want)
	}
}

func TestSet_MixedIDFamilies(t *testing.T) {
	s := NewSet()
	s.Add("custom-cue-1", "a")
	s.Add("custom-cue-0", "b")

	sorted := s.Sorted()
	if sorted[0].ID != "custom-cue-0" {
		t.Errorf("expected custom-cue-0 first, got %s", sorted[0].ID)
	}
}

func TestSet_CueTimestampParsed(t *testing.T) {
	s := NewSet()
	s.Add("transcript-cue-1", "1:05\nsome words")

	if got := s.Sorted()[0].Seconds; got != 65 {
		t.Errorf("cue seconds = %d, want 65", got)
	}
}

func TestSet_SortedTextJoinsWithNewlines(t *testing.T) {
	s := NewSet()
	s.Add("transcript-cue-1", "one")
	s.Add("transcript-cue-2", "two")

	if got := s.SortedText(); strings.Count(got, "\n") != 1 {
		t.Errorf("SortedText = %q, want exactly one newline", got)
	}
}
