// Package panel opens and closes the player's transcript sidebar. It
// reads the frame's HTML, picks the right control with goquery, and
// clicks it by index; detection of the open panel combines several
// independent DOM signals so a player skin change doesn't break all of
// them at once.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// timestampText recognizes a rendered cue list by its MM:SS offsets,
// the one thing a transcript shows regardless of player skin.
var timestampText = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// ErrButtonNotFound means no transcript or captions control exists in
// the frame, typically because the video has no transcript at all.
var ErrButtonNotFound = errors.New("transcript button not found")

// Frame is the slice of frame primitives the panel needs.
type Frame interface {
	HTML(ctx context.Context) (string, error)
	ClickButton(ctx context.Context, index int) error
	ScrollToTop(ctx context.Context) error
}

// Opener drives the panel open/close sequence against one frame.
type Opener struct {
	// Attempts and Spacing govern the click-and-recheck retry loop.
	Attempts int
	Spacing  time.Duration
	Logger   *slog.Logger
}

// NewOpener returns an opener with the production retry policy: five
// attempts half a second apart.
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{Attempts: 5, Spacing: 500 * time.Millisecond, Logger: logger}
}

// DetectOpen reports whether the transcript panel is already showing.
func DetectOpen(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	if doc.Find(`[id^="transcript-cue-"]`).Length() > 0 {
		return true
	}
	if doc.Find(`#transcript-list, ul[data-component-type="loaded-transcript"]`).Length() > 0 {
		return true
	}
	timed := false
	doc.Find("ul, ol").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if timestampText.MatchString(s.Text()) {
			timed = true
			return false
		}
		return true
	})
	if timed {
		return true
	}
	open := false
	doc.Find(`button[aria-pressed="true"], button[aria-expanded="true"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if isTranscriptButton(s) {
			open = true
			return false
		}
		return true
	})
	return open
}

// IsOpen snapshots the frame and checks for the open panel.
func (o *Opener) IsOpen(ctx context.Context, f Frame) (bool, error) {
	html, err := f.HTML(ctx)
	if err != nil {
		return false, err
	}
	return DetectOpen(html), nil
}

// Open clicks the transcript control until the panel shows, retrying
// on a fixed cadence. Returns nil when the panel is open, or
// ErrButtonNotFound when the frame has no such control.
func (o *Opener) Open(ctx context.Context, f Frame) error {
	for attempt := 0; attempt < o.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.Spacing); err != nil {
				return err
			}
		}

		html, err := f.HTML(ctx)
		if err != nil {
			return err
		}
		if DetectOpen(html) {
			return nil
		}

		idx, err := findTranscriptButton(html)
		if err != nil {
			o.Logger.Debug("transcript button not present yet", "attempt", attempt+1)
			continue
		}

		o.Logger.Debug("clicking transcript button", "index", idx, "attempt", attempt+1)
		if err := f.ClickButton(ctx, idx); err != nil {
			return fmt.Errorf("click transcript button: %w", err)
		}
	}

	html, err := f.HTML(ctx)
	if err != nil {
		return err
	}
	if DetectOpen(html) {
		return nil
	}
	return ErrButtonNotFound
}

// Reset closes the panel again so repeat captures start from the same
// state. Best effort: a panel we can't close is a cosmetic problem.
func (o *Opener) Reset(ctx context.Context, f Frame) error {
	if err := f.ScrollToTop(ctx); err != nil {
		return err
	}

	html, err := f.HTML(ctx)
	if err != nil {
		return err
	}
	if !DetectOpen(html) {
		return nil
	}

	idx, err := findTranscriptButton(html)
	if err != nil {
		return nil
	}
	return f.ClickButton(ctx, idx)
}

// findTranscriptButton returns the index (in document button order) of
// the control most likely to toggle the transcript. Explicit
// transcript controls win over generic captions toggles.
func findTranscriptButton(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, err
	}

	best := -1
	fallback := -1
	doc.Find("button").Each(func(i int, s *goquery.Selection) {
		label := buttonLabel(s)
		switch {
		case strings.Contains(label, "transcript"):
			if best == -1 {
				best = i
			}
		case strings.Contains(label, "caption") || strings.Contains(label, "subtitle") || label == "cc":
			if fallback == -1 {
				fallback = i
			}
		}
	})

	if best != -1 {
		return best, nil
	}
	if fallback != -1 {
		return fallback, nil
	}
	return 0, ErrButtonNotFound
}

func isTranscriptButton(s *goquery.Selection) bool {
	label := buttonLabel(s)
	return strings.Contains(label, "transcript") ||
		strings.Contains(label, "caption") || strings.Contains(label, "subtitle")
}

func buttonLabel(s *goquery.Selection) string {
	label := s.AttrOr("aria-label", "") + " " + s.Text()
	return strings.ToLower(strings.TrimSpace(label))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
