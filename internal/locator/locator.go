// Package locator scans a course page for embedded player iframes and
// derives a human title and a safe filename for each. Titles come from
// the markup around the iframe, which varies by course theme, so the
// lookup is a chain of fallbacks rather than a single selector.
package locator

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mvanhorn/capscribe/internal/texttool"
)

// defaultIDPattern extracts the numeric video id from Vimeo embed and
// page URLs.
const defaultIDPattern = `(?:vimeo\.com/(?:video/)?|player\.vimeo\.com/video/)([0-9]+)`

// titleAncestorLevels bounds how far above the iframe the heading
// search climbs. Course pages nest each video in a small activity
// block; climbing higher starts matching section headings.
const titleAncestorLevels = 3

// BadgeNotifier receives the found-video count, for surfaces that show
// it (the control API status, a toolbar badge equivalent).
type BadgeNotifier interface {
	UpdateBadge(count int)
}

// Video is one playable embed found on the page.
type Video struct {
	// ID is stable within one scan: "video-0", "video-1", ...
	ID string
	// ProviderVideoID is the provider's numeric id from the embed URL.
	ProviderVideoID string
	// SourceURL is the iframe src as written in the page.
	SourceURL string
	Title     string
	Filename  string
}

// Config tunes the scan.
type Config struct {
	// ProviderDomain selects iframes by src substring.
	ProviderDomain string
	// IDPattern overrides the provider id regexp; group 1 is the id.
	IDPattern string
	// Boilerplate lists title fragments to strip, e.g. "- Vimeo".
	Boilerplate []string
	Notifier    BadgeNotifier
	Logger      *slog.Logger
}

// Locator scans page HTML for videos.
type Locator struct {
	cfg       Config
	idPattern *regexp.Regexp
	logger    *slog.Logger
}

// New compiles the id pattern and returns a locator. An invalid
// custom pattern is an error; the default always compiles.
func New(cfg Config) (*Locator, error) {
	pattern := cfg.IDPattern
	if pattern == "" {
		pattern = defaultIDPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile id pattern: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Locator{cfg: cfg, idPattern: re, logger: cfg.Logger}, nil
}

// Detect finds every matching iframe in the page. Iframes whose src
// yields no video id are skipped; a page with none returns an empty
// slice, not an error.
func (l *Locator) Detect(pageHTML string) ([]Video, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var videos []Video
	doc.Find("iframe").Each(func(_ int, iframe *goquery.Selection) {
		src, ok := iframe.Attr("src")
		if !ok || !strings.Contains(src, l.cfg.ProviderDomain) {
			return
		}

		m := l.idPattern.FindStringSubmatch(src)
		if m == nil || m[1] == "" {
			l.logger.Debug("iframe src has no video id, skipping", "src", src)
			return
		}

		n := len(videos)
		title := l.title(iframe, n)
		videos = append(videos, Video{
			ID:              fmt.Sprintf("video-%d", n),
			ProviderVideoID: m[1],
			SourceURL:       src,
			Title:           title,
			Filename:        texttool.SanitizeFilename(title),
		})
	})

	l.logger.Info("page scan finished", "videos", len(videos))
	if l.cfg.Notifier != nil {
		l.cfg.Notifier.UpdateBadge(len(videos))
	}
	return videos, nil
}

// title derives a display title for the nth iframe: its own title
// attribute, then the nearest heading above it, then an image alt in
// the same block, then a positional fallback.
func (l *Locator) title(iframe *goquery.Selection, n int) string {
	if t := strings.TrimSpace(iframe.AttrOr("title", "")); t != "" && !genericTitle(t) {
		return l.clean(t)
	}

	if t := headingBefore(iframe); t != "" {
		return l.clean(t)
	}

	if parent := iframe.Parent(); parent.Length() > 0 {
		if alt := strings.TrimSpace(parent.Find("img[alt]").First().AttrOr("alt", "")); alt != "" {
			return l.clean(alt)
		}
	}

	return fmt.Sprintf("Video %d", n+1)
}

func (l *Locator) clean(title string) string {
	return texttool.StripBoilerplate(title, l.cfg.Boilerplate)
}

// genericTitle filters title attributes that carry no information.
func genericTitle(t string) bool {
	switch strings.ToLower(t) {
	case "video", "player", "vimeo", "embedded video", "video player":
		return true
	}
	return false
}

// headingBefore finds the last heading that precedes the iframe in
// document order, searching within a few ancestor levels.
func headingBefore(iframe *goquery.Selection) string {
	if iframe.Length() == 0 {
		return ""
	}
	target := iframe.Get(0)

	ancestor := iframe.Parent()
	for level := 0; level < titleAncestorLevels && ancestor.Length() > 0; level++ {
		if t := lastHeadingBefore(ancestor.Get(0), target); t != "" {
			return t
		}
		ancestor = ancestor.Parent()
	}
	return ""
}

// lastHeadingBefore walks root depth-first and returns the text of the
// last h1-h6 seen before reaching target.
func lastHeadingBefore(root, target *html.Node) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n == target {
			return true
		}
		if n.Type == html.ElementNode && isHeading(n.Data) {
			if t := strings.TrimSpace(nodeText(n)); t != "" {
				found = t
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(root) {
		return ""
	}
	return found
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
