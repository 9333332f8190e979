package texttool

import (
	"regexp"
	"strings"
)

var (
	// A line that is nothing but a short timestamp carries no prose.
	standaloneTimestamp = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

	sentenceEnd       = regexp.MustCompile(`[.!?]$`)
	lowercaseStart    = regexp.MustCompile(`^[a-z]`)
	clauseEnd         = regexp.MustCompile(`[.!?,;:]$`)
	excessNewlines    = regexp.MustCompile(`\n{3,}`)
	horizontalSpacing = regexp.MustCompile(`[ \t]+`)
)

// Format cleans a raw cue dump into readable prose. The passes, in
// order: drop standalone-timestamp lines, drop duplicate and empty
// lines (first occurrence wins), merge broken caption lines into
// sentences using punctuation heuristics, and normalize whitespace.
//
// The merge treats a line ending in .!? as closing the accumulating
// sentence, a line starting lowercase or lacking closing punctuation
// as a continuation, and anything else as the start of a new sentence.
func Format(text string) string {
	lines := dedupeLines(text)

	var b strings.Builder
	var current string

	flush := func(line string) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	for _, line := range lines {
		switch {
		case sentenceEnd.MatchString(line):
			if current != "" {
				flush(current + " " + line)
				current = ""
			} else {
				flush(line)
			}
		case lowercaseStart.MatchString(line) || !clauseEnd.MatchString(line):
			if current != "" {
				current += " " + line
			} else {
				current = line
			}
		default:
			if current != "" {
				flush(current)
			}
			current = line
		}
	}
	if current != "" {
		b.WriteString(current)
	}

	out := strings.TrimSpace(b.String())
	out = excessNewlines.ReplaceAllString(out, "\n\n")
	out = horizontalSpacing.ReplaceAllString(out, " ")
	return out
}

// dedupeLines splits text into trimmed lines, dropping empties,
// standalone timestamps, and exact duplicates while preserving
// first-seen order.
func dedupeLines(text string) []string {
	seen := make(map[string]struct{})
	var lines []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || standaloneTimestamp.MatchString(trimmed) {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		lines = append(lines, trimmed)
	}
	return lines
}
