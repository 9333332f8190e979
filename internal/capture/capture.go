// Package capture drives the lazy-loaded transcript to the end and
// collects every cue. The player only renders cues near the viewport,
// so the driver scrolls in fixed steps on a timer, re-scans the cue
// list after each step, and stops when the scroller wedges at the
// bottom with no new cues for a few consecutive ticks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mvanhorn/capscribe/internal/cues"
	"github.com/mvanhorn/capscribe/internal/texttool"
)

var (
	// ErrContainerNotFound means the transcript list never appeared in
	// the frame, usually because the panel failed to open.
	ErrContainerNotFound = errors.New("transcript container not found")
	// ErrCancelled marks a capture stopped by user request.
	ErrCancelled = errors.New("capture cancelled")
)

// Metrics is one reading of the scroller's geometry.
type Metrics struct {
	Top    float64
	Height float64
	Client float64
	Width  float64
}

// Frame is the slice of frame primitives the driver needs.
type Frame interface {
	HTML(ctx context.Context) (string, error)
	ScrollMetrics(ctx context.Context) (Metrics, error)
	ScrollBy(ctx context.Context, px float64) error
	ScrollToTop(ctx context.Context) error
}

// State names the finishing phases reported after scrolling ends.
type State string

const (
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateFormatting State = "formatting"
	StateSaving     State = "saving"
	StateComplete   State = "complete"
)

// Progress is one report from a running capture.
type Progress struct {
	Segments          int
	Fraction          float64
	State             State
	EstimatedDuration int
	HasStarted        bool
}

// ReportFunc receives progress reports. Called from the driver's
// goroutine; keep it fast.
type ReportFunc func(Progress)

// Saver persists the finished transcript and returns where it went.
type Saver interface {
	Save(fileName, text string) (string, error)
}

// Config tunes the scroll loop. Zero values get production defaults
// from [DefaultConfig].
type Config struct {
	// Tick is the scroll cadence.
	Tick time.Duration
	// InitialSettle waits for the panel's first cues to render.
	InitialSettle time.Duration
	// NearBottomPx treats the scroller as at the end within this slack.
	NearBottomPx float64
	// EndStableTicks is how many consecutive stuck-and-empty ticks
	// confirm the end.
	EndStableTicks int
	// MaxTicks caps the loop regardless of progress.
	MaxTicks int
	// Timeout is the wall-clock safety net for one capture.
	Timeout time.Duration
	// CompletionDelay holds the final report briefly before saving.
	CompletionDelay time.Duration

	Report ReportFunc
	Saver  Saver
	Logger *slog.Logger
}

// DefaultConfig is the production loop tuning.
func DefaultConfig() Config {
	return Config{
		Tick:            250 * time.Millisecond,
		InitialSettle:   time.Second,
		NearBottomPx:    10,
		EndStableTicks:  3,
		MaxTicks:        250,
		Timeout:         45 * time.Second,
		CompletionDelay: 500 * time.Millisecond,
	}
}

// Result is a finished capture.
type Result struct {
	FileName string
	Path     string
	Text     string
	Segments int
	Cues     []cues.Cue
	// Reason records how the loop ended: reached-end, max-ticks, or
	// timeout.
	Reason string
}

// Driver runs one capture over one frame.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

// NewDriver applies defaults to the zero fields of cfg.
func NewDriver(cfg Config) *Driver {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.InitialSettle <= 0 {
		cfg.InitialSettle = def.InitialSettle
	}
	if cfg.NearBottomPx <= 0 {
		cfg.NearBottomPx = def.NearBottomPx
	}
	if cfg.EndStableTicks <= 0 {
		cfg.EndStableTicks = def.EndStableTicks
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = def.MaxTicks
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CompletionDelay <= 0 {
		cfg.CompletionDelay = def.CompletionDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{cfg: cfg, logger: cfg.Logger}
}

// scrollStep sizes one scroll advance from the scroller's width, so
// narrow embeds creep and wide ones stride. Clamped to a band that
// never outruns lazy rendering.
func scrollStep(width float64) float64 {
	step := 225 + width/5
	return math.Max(120, math.Min(400, step))
}

// Run scrolls the transcript to the end, cleans the text, and saves
// it under fileName (extension added here). Cancelling ctx stops the
// loop and returns ErrCancelled.
func (d *Driver) Run(ctx context.Context, f Frame, fileName string) (Result, error) {
	if err := sleepCtx(ctx, d.cfg.InitialSettle); err != nil {
		return Result{}, ErrCancelled
	}

	set := cues.NewSet()
	tracker := &cues.Tracker{}

	if err := d.scan(ctx, f, set, tracker); err != nil {
		return Result{}, err
	}
	if err := f.ScrollToTop(ctx); err != nil {
		return Result{}, fmt.Errorf("rewind transcript: %w", err)
	}

	deadline := time.NewTimer(d.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	var (
		lastTop     float64
		stableTicks int
		reason      string
	)

loop:
	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return Result{}, ErrCancelled
		case <-deadline.C:
			reason = "timeout"
			break loop
		case <-ticker.C:
		}

		if tick >= d.cfg.MaxTicks {
			reason = "max-ticks"
			break loop
		}

		m, err := f.ScrollMetrics(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("scroll metrics: %w", err)
		}
		if err := f.ScrollBy(ctx, scrollStep(m.Width)); err != nil {
			return Result{}, fmt.Errorf("scroll transcript: %w", err)
		}

		added, err := d.scanAdded(ctx, f, set, tracker)
		if err != nil {
			return Result{}, err
		}

		d.report(Progress{
			Segments:          set.Len(),
			Fraction:          tracker.Fraction(m.Top, m.Height, m.Client),
			State:             StateCapturing,
			EstimatedDuration: tracker.EstimatedDuration(),
			HasStarted:        set.Len() > 0,
		})

		stuck := m.Top == lastTop
		nearBottom := m.Top+m.Client >= m.Height-d.cfg.NearBottomPx
		if (stuck || nearBottom) && added == 0 {
			stableTicks++
		} else {
			stableTicks = 0
		}
		lastTop = m.Top

		if stableTicks >= d.cfg.EndStableTicks {
			reason = "reached-end"
			break loop
		}
	}

	d.logger.Info("scroll loop finished",
		"reason", reason, "segments", set.Len())

	if set.Len() == 0 {
		return Result{}, ErrContainerNotFound
	}
	return d.complete(ctx, set, fileName, reason)
}

// complete walks the finishing states: assemble, clean, save.
func (d *Driver) complete(ctx context.Context, set *cues.Set, fileName, reason string) (Result, error) {
	d.report(Progress{Segments: set.Len(), State: StateProcessing, HasStarted: true})
	raw := set.SortedText()

	d.report(Progress{Segments: set.Len(), State: StateFormatting, HasStarted: true})
	text := texttool.Format(raw)

	d.report(Progress{Segments: set.Len(), State: StateSaving, HasStarted: true})
	if err := sleepCtx(ctx, d.cfg.CompletionDelay); err != nil {
		return Result{}, ErrCancelled
	}

	if !strings.HasSuffix(fileName, ".txt") {
		fileName += ".txt"
	}
	res := Result{
		FileName: fileName,
		Text:     text,
		Segments: set.Len(),
		Cues:     set.Sorted(),
		Reason:   reason,
	}
	if d.cfg.Saver != nil {
		path, err := d.cfg.Saver.Save(res.FileName, text)
		if err != nil {
			return Result{}, fmt.Errorf("save transcript: %w", err)
		}
		res.Path = path
	}

	d.report(Progress{Segments: set.Len(), Fraction: 1, State: StateComplete, HasStarted: true})
	return res, nil
}

// scan snapshots the frame and harvests cues, failing when no
// container strategy matches.
func (d *Driver) scan(ctx context.Context, f Frame, set *cues.Set, tracker *cues.Tracker) error {
	_, err := d.scanInto(ctx, f, set, tracker, true)
	return err
}

func (d *Driver) scanAdded(ctx context.Context, f Frame, set *cues.Set, tracker *cues.Tracker) (int, error) {
	return d.scanInto(ctx, f, set, tracker, false)
}

func (d *Driver) scanInto(ctx context.Context, f Frame, set *cues.Set, tracker *cues.Tracker, require bool) (int, error) {
	html, err := f.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("frame html: %w", err)
	}

	container, ok := findContainer(html)
	if !ok {
		if require {
			return 0, ErrContainerNotFound
		}
		return 0, nil
	}
	return cues.ScanContainer(container, set, tracker), nil
}

// timestampText spots a cue list by content: transcript cues always
// carry MM:SS offsets even when the player skin renames everything.
var timestampText = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// findContainer tries the known shapes of the cue list: explicit cue
// ids anywhere, the #transcript-list element, the loaded-transcript
// marker list, and finally any list whose text reads like timestamps.
func findContainer(html string) (*goquery.Selection, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	if cueEls := doc.Find(`[id^="` + cues.CueIDPrefix + `"]`); cueEls.Length() > 0 {
		return cueEls.First().Parent(), true
	}
	if list := doc.Find("#transcript-list"); list.Length() > 0 {
		return list.First(), true
	}
	if list := doc.Find(`ul[data-component-type="loaded-transcript"]`); list.Length() > 0 {
		return list.First(), true
	}

	var byText *goquery.Selection
	doc.Find("ul, ol").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if timestampText.MatchString(s.Text()) {
			byText = s
			return false
		}
		return true
	})
	if byText != nil {
		return byText, true
	}
	return nil, false
}

func (d *Driver) report(p Progress) {
	if d.cfg.Report != nil {
		d.cfg.Report(p)
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
