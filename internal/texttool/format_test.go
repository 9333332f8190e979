package texttool

import (
	"strings"
	"testing"
)

func TestFormat_DropsStandaloneTimestamps(t *testing.T) {
	got := Format("0:01\nHello there.\n12:34\nAnother line.")
	if strings.Contains(got, "0:01") || strings.Contains(got, "12:34") {
		t.Errorf("timestamps survived formatting: %q", got)
	}
}

func TestFormat_DedupesLines(t *testing.T) {
	got := Format("Same line.\nSame line.\nDifferent line.")
	if n := strings.Count(got, "Same line."); n != 1 {
		t.Errorf("duplicate line appears %d times in %q", n, got)
	}
}

func TestFormat_MergesContinuations(t *testing.T) {
	// A line without closing punctuation accumulates; the following
	// sentence-ending line closes it with a single joining space.
	got := Format("and so we see\nthat grace abounds.")
	want := "and so we see that grace abounds."
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormat_NewSentenceFlushesAccumulator(t *testing.T) {
	got := Format("This thought trails off,\nThis one ends properly.")
	if !strings.Contains(got, "This thought trails off,") {
		t.Errorf("accumulated partial sentence lost: %q", got)
	}
	if !strings.Contains(got, "This one ends properly.") {
		t.Errorf("complete sentence lost: %q", got)
	}
}

func TestFormat_Idempotent(t *testing.T) {
	in := "0:05\nWelcome to the course\n0:09\neveryone.\nLet us begin.\nLet us begin."
	once := Format(in)
	twice := Format(once)
	if once != twice {
		t.Errorf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestFormat_EndToEndScenario(t *testing.T) {
	// Two scan ticks over a lazily rendered list yield a duplicate cue
	// and a continuation split across cues.
	raw := "0:01\nHello\n0:01\nHello\n0:05\nworld."
	got := Format(raw)
	if got != "Hello world." {
		t.Errorf("Format = %q, want %q", got, "Hello world.")
	}
}

func TestFormat_CollapsesWhitespace(t *testing.T) {
	got := Format("Too   many\t spaces here.")
	if strings.Contains(got, "  ") || strings.Contains(got, "\t") {
		t.Errorf("whitespace runs survived: %q", got)
	}
}
