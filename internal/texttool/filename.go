package texttool

import (
	"regexp"
	"strings"
)

const (
	// maxFilenameRunes bounds sanitized titles so downloads stay
	// readable in file managers.
	maxFilenameRunes = 50

	// fallbackFilename is used when sanitization leaves nothing.
	fallbackFilename = "video_transcript"
)

var (
	illegalFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRuns       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename turns a video title into a filesystem-safe base
// name: characters illegal on common filesystems become underscores,
// whitespace collapses to single spaces, the result is trimmed and
// truncated to 50 runes, and an empty result falls back to a fixed
// name. Idempotent on its own output.
func SanitizeFilename(name string) string {
	s := illegalFilenameChars.ReplaceAllString(name, "_")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if r := []rune(s); len(r) > maxFilenameRunes {
		s = strings.TrimSpace(string(r[:maxFilenameRunes]))
	}

	if s == "" {
		return fallbackFilename
	}
	return s
}

// StripBoilerplate removes provider boilerplate fragments from a
// title, case-insensitively ("Lecture 3 from Acme College on Vimeo"
// shapes), then trims the remainder.
func StripBoilerplate(title string, fragments []string) string {
	for _, f := range fragments {
		if f == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(f))
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}
