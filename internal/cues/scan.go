package cues

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CueIDPrefix is the id prefix the provider's transcript widget puts
// on rendered cue elements.
const CueIDPrefix = "transcript-cue-"

// syntheticIDFormat names cues that render without ids, keyed by their
// position in the list.
const syntheticIDFormat = "custom-cue-%d"

// ScanContainer reads all cue-shaped children of a transcript
// container into the set, feeding each newly seen cue to the tracker.
// It prefers elements carrying the provider's cue-id prefix and falls
// back to plain list items with positional ids. Returns the number of
// cues added by this pass.
func ScanContainer(container *goquery.Selection, set *Set, tracker *Tracker) int {
	sel := container.Find(`[id^="` + CueIDPrefix + `"]`)
	if sel.Length() == 0 {
		sel = container.Find("li")
	}

	added := 0
	sel.Each(func(i int, cue *goquery.Selection) {
		id, ok := cue.Attr("id")
		if !ok || id == "" {
			id = fmt.Sprintf(syntheticIDFormat, i)
		}

		if set.Add(id, cueText(cue)) {
			added++
			tracker.Observe(set.cues[id].Text)
		}
	})
	return added
}

// cueText approximates the rendered text of a cue element: the texts
// of its child elements joined by newlines, mirroring how a timestamp
// span and a caption body render as separate lines.
func cueText(sel *goquery.Selection) string {
	children := sel.Children()
	if children.Length() == 0 {
		return strings.TrimSpace(sel.Text())
	}

	var parts []string
	children.Each(func(_ int, child *goquery.Selection) {
		if t := strings.TrimSpace(child.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(sel.Text())
	}
	return strings.Join(parts, "\n")
}
