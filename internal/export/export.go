// Package export persists finished transcripts. Plain text is the
// primary format; SRT and HTML are derived renderings of the same
// capture.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/mvanhorn/capscribe/internal/cues"
	"github.com/mvanhorn/capscribe/internal/texttool"
)

// Writer saves transcripts under a single output directory. It
// implements the capture package's Saver.
type Writer struct {
	Dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

// Save writes text under fileName in the output directory and returns
// the full path.
func (w *Writer) Save(fileName, text string) (string, error) {
	path := filepath.Join(w.Dir, fileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", fileName, err)
	}
	return path, nil
}

// lastCuePadding extends the final cue, which has no successor to
// borrow an end time from.
const lastCuePadding = 3

// SRTFromCues renders timed cues as SubRip. Each cue ends where the
// next begins; the last gets a fixed padding. Cues without a parsed
// timestamp are skipped, SRT being useless without timing.
func SRTFromCues(cs []cues.Cue) string {
	var timed []cues.Cue
	for _, c := range cs {
		if c.Seconds >= 0 && hasTimestamp(c.Text) {
			timed = append(timed, c)
		}
	}

	var b strings.Builder
	for i, c := range timed {
		end := c.Seconds + lastCuePadding
		if i+1 < len(timed) && timed[i+1].Seconds > c.Seconds {
			end = timed[i+1].Seconds
		}

		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTime(c.Seconds), srtTime(end), cueBody(c.Text))
	}
	return b.String()
}

func hasTimestamp(text string) bool {
	first, _, _ := strings.Cut(text, "\n")
	_, ok := texttool.LeadingTimestamp(strings.TrimSpace(first))
	return ok
}

// cueBody strips the leading timestamp line, leaving the spoken text.
func cueBody(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i == 0 {
			if _, ok := texttool.LeadingTimestamp(trimmed); ok && len(trimmed) <= 12 {
				continue
			}
		}
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}

func srtTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d,000", h, m, s)
}

// HTMLFromText renders the cleaned transcript as a standalone HTML
// page, one paragraph per transcript paragraph.
func HTMLFromText(title, text string) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", title)
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			md.WriteString(para)
			md.WriteString("\n\n")
		}
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &body); err != nil {
		return "", fmt.Errorf("render transcript html: %w", err)
	}

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", title)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// SaveFormats writes the requested derived formats next to the .txt
// file. Formats are "srt" and "html"; unknown names are errors so
// config typos surface immediately.
func (w *Writer) SaveFormats(baseName string, formats []string, title, text string, cs []cues.Cue) ([]string, error) {
	base := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	var paths []string
	for _, format := range formats {
		switch format {
		case "txt":
			// Already written by Save.
		case "srt":
			path, err := w.Save(base+".srt", SRTFromCues(cs))
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		case "html":
			page, err := HTMLFromText(title, text)
			if err != nil {
				return paths, err
			}
			path, err := w.Save(base+".html", page)
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		default:
			return paths, fmt.Errorf("unknown export format %q", format)
		}
	}
	return paths, nil
}
