package coordinator

import (
	"context"
	"fmt"

	"github.com/mvanhorn/capscribe/internal/devtools"
)

// FrameSession is a live isolated world inside the player frame. It
// exposes the handful of DOM primitives the panel and capture packages
// are built on; all decision logic stays on the Go side.
type FrameSession struct {
	client    *devtools.Client
	sessionID string
	contextID int64
	frameID   string
}

// FrameID reports which frame this session is bound to.
func (fs *FrameSession) FrameID() string {
	return fs.frameID
}

// findScroller locates the transcript's scrollable list. Vimeo renders
// it under a hashed CSS-module class; the fallbacks walk up from the
// cue list to the nearest overflow container, then settle for the
// frame body.
const findScroller = `(function() {
	var el = document.querySelector('[class*="TranscriptList_lazy_module_listContainer"]');
	if (el) return el;
	var list = document.querySelector('#transcript-list') ||
		document.querySelector('ul[data-component-type="loaded-transcript"]');
	for (var node = list; node; node = node.parentElement) {
		var o = getComputedStyle(node).overflowY;
		if (o === 'auto' || o === 'scroll') return node;
	}
	return document.scrollingElement || document.body;
})()`

// HTML snapshots the frame's document.
func (fs *FrameSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := fs.client.Evaluate(ctx, fs.sessionID, fs.contextID,
		"document.documentElement.outerHTML", &html)
	if err != nil {
		return "", fmt.Errorf("frame html: %w", err)
	}
	return html, nil
}

// ClickButton clicks the frame's nth button element. Which button to
// click is decided in Go from the HTML snapshot, so the frame side
// only needs an index.
func (fs *FrameSession) ClickButton(ctx context.Context, index int) error {
	expr := fmt.Sprintf(`(function() {
	var b = document.querySelectorAll('button')[%d];
	if (!b) throw new Error('button index out of range');
	b.click();
})()`, index)
	return fs.client.Evaluate(ctx, fs.sessionID, fs.contextID, expr, nil)
}

// Metrics is one reading of the transcript scroller's geometry.
type Metrics struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Client float64 `json:"client"`
	Width  float64 `json:"width"`
}

// ScrollMetrics reads the scroller's position and extents.
func (fs *FrameSession) ScrollMetrics(ctx context.Context) (Metrics, error) {
	expr := `(function() {
	var el = ` + findScroller + `;
	return {top: el.scrollTop, height: el.scrollHeight,
		client: el.clientHeight, width: el.clientWidth};
})()`

	var m Metrics
	if err := fs.client.Evaluate(ctx, fs.sessionID, fs.contextID, expr, &m); err != nil {
		return Metrics{}, fmt.Errorf("scroll metrics: %w", err)
	}
	return m, nil
}

// ScrollBy advances the scroller by px pixels.
func (fs *FrameSession) ScrollBy(ctx context.Context, px float64) error {
	expr := fmt.Sprintf(`(function() {
	var el = %s;
	el.scrollTop = el.scrollTop + %g;
})()`, findScroller, px)
	return fs.client.Evaluate(ctx, fs.sessionID, fs.contextID, expr, nil)
}

// ScrollToTop rewinds the scroller so a capture always starts from the
// first cue.
func (fs *FrameSession) ScrollToTop(ctx context.Context) error {
	expr := `(function() {
	var el = ` + findScroller + `;
	el.scrollTop = 0;
})()`
	return fs.client.Evaluate(ctx, fs.sessionID, fs.contextID, expr, nil)
}
