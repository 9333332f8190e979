// Package texttool holds the pure text transforms shared by the cue
// scanner, the capture driver, and the video locator: timestamp
// parsing, filename sanitization, and transcript cleanup. Everything
// here is deterministic and side-effect free.
package texttool

import (
	"regexp"
	"strconv"
)

var (
	// Matches MM:SS or HH:MM:SS anywhere in the string; the hour group
	// is optional.
	timestampPattern = regexp.MustCompile(`(?:(\d+):)?(\d+):(\d+)`)

	// Matches a timestamp at the start of a cue line, tolerating the
	// optional square brackets some widget skins render.
	leadingPattern = regexp.MustCompile(`^\[?(\d+:\d+(?::\d+)?)\]?`)
)

// ParseTimestamp converts an "MM:SS" or "HH:MM:SS" string to whole
// seconds. Strings containing no timestamp parse to 0.
func ParseTimestamp(s string) int {
	m := timestampPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	if m[1] != "" {
		hours, _ := strconv.Atoi(m[1])
		return hours*3600 + mins*60 + secs
	}
	return mins*60 + secs
}

// LeadingTimestamp extracts the timestamp at the beginning of a cue
// line. The second return is false when the line does not start with
// one.
func LeadingTimestamp(line string) (string, bool) {
	m := leadingPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}
