package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mvanhorn/capscribe/internal/capture"
	"github.com/mvanhorn/capscribe/internal/locator"
)

// ErrBusy is returned when a capture is requested while another is
// being torn down on the caller's behalf and the teardown fails.
var ErrBusy = errors.New("another capture is still running")

// Bridge is everything the controller needs from the browser side. An
// implementation holds the resolved tab and frame between calls;
// Prepare must be called before the per-frame operations.
type Bridge interface {
	// Prepare resolves the course tab and the video's player frame.
	Prepare(ctx context.Context, video locator.Video) error
	IsTranscriptOpen(ctx context.Context) (bool, error)
	OpenTranscript(ctx context.Context) error
	ScrollToTop(ctx context.Context) error
	// Capture runs the scroll capture, streaming reports to report.
	Capture(ctx context.Context, fileName string, report capture.ReportFunc) (capture.Result, error)
	// ResetPanel restores the player for the next capture. Best effort.
	ResetPanel(ctx context.Context) error
	// ReloadFrame reloads the player frame, the remedy when a sequence
	// keeps failing.
	ReloadFrame(ctx context.Context) error
}

// Sink receives session lifecycle and progress updates.
type Sink interface {
	Begin(video locator.Video)
	// Batch reports position in a process-all run before each video
	// starts: 1-based index of total. Never called for single captures.
	Batch(index, total int)
	Update(video locator.Video, fraction float64, state capture.State, segments int)
	Fail(video locator.Video, err error)
	End(video locator.Video, res capture.Result)
}

// Config tunes the controller. Zero durations and counts get
// production defaults.
type Config struct {
	Bridge Bridge
	Sink   Sink
	// StepRetries is how many times each setup step is attempted
	// before the frame-reload remedy kicks in.
	StepRetries  int
	RetrySpacing time.Duration
	// OpenSettle waits after the panel opens for the first cues.
	OpenSettle time.Duration
	// AnimationTick is the progress render cadence.
	AnimationTick time.Duration
	// CompletionHold keeps the full bar visible before teardown.
	CompletionHold time.Duration
	// BatchPause separates captures in a process-all run.
	BatchPause time.Duration
	Logger     *slog.Logger
}

func (c *Config) fillDefaults() {
	if c.StepRetries <= 0 {
		c.StepRetries = 3
	}
	if c.RetrySpacing <= 0 {
		c.RetrySpacing = time.Second
	}
	if c.OpenSettle <= 0 {
		c.OpenSettle = time.Second
	}
	if c.AnimationTick <= 0 {
		c.AnimationTick = 50 * time.Millisecond
	}
	if c.CompletionHold <= 0 {
		c.CompletionHold = 2 * time.Second
	}
	if c.BatchPause <= 0 {
		c.BatchPause = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller runs capture sessions one at a time. Starting a new
// session cancels the previous one and waits for its teardown before
// any setup begins.
type Controller struct {
	cfg      Config
	logger   *slog.Logger
	progress progressState

	mu      sync.Mutex
	cancel  context.CancelFunc
	running chan struct{} // closed when the active session ends
}

// NewController validates and applies defaults.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Bridge == nil {
		return nil, errors.New("orchestrator: Bridge is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("orchestrator: Sink is required")
	}
	cfg.fillDefaults()
	return &Controller{cfg: cfg, logger: cfg.Logger}, nil
}

// Process captures one video's transcript, blocking until it finishes
// or fails. A session already in flight is cancelled first.
func (c *Controller) Process(ctx context.Context, video locator.Video) (capture.Result, error) {
	ctx, done, err := c.claim(ctx)
	if err != nil {
		return capture.Result{}, err
	}
	defer done()

	res, err := c.sequence(ctx, video, true)
	if err != nil {
		c.cfg.Sink.Fail(video, err)
		return capture.Result{}, err
	}
	c.cfg.Sink.End(video, res)
	return res, nil
}

// Cancel stops the in-flight session, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// claim cancels any running session, waits for it to unwind, and
// registers the new one.
func (c *Controller) claim(ctx context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	prevCancel, prevRunning := c.cancel, c.running
	c.mu.Unlock()

	if prevRunning != nil {
		c.logger.Info("cancelling previous capture session")
		prevCancel()
		select {
		case <-prevRunning:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return nil, nil, ErrBusy
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	running := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.running = running
	c.mu.Unlock()

	done := func() {
		cancel()
		close(running)
		c.mu.Lock()
		if c.running == running {
			c.cancel = nil
			c.running = nil
		}
		c.mu.Unlock()
	}
	return sessCtx, done, nil
}

// sequence runs setup and capture. When allowRemedy is set and the
// sequence fails, the frame is reloaded and the whole sequence runs
// once more from the top.
func (c *Controller) sequence(ctx context.Context, video locator.Video, allowRemedy bool) (capture.Result, error) {
	c.cfg.Sink.Begin(video)
	c.progress.begin()

	animCtx, stopAnim := context.WithCancel(ctx)
	defer stopAnim()
	go c.animate(animCtx, video)

	res, err := c.run(ctx, video)
	if err == nil {
		// Leave the full bar on screen before teardown.
		if holdErr := sleepCtx(ctx, c.cfg.CompletionHold); holdErr != nil {
			return res, nil
		}
		if resetErr := c.cfg.Bridge.ResetPanel(ctx); resetErr != nil {
			c.logger.Warn("panel reset failed", "video", video.ID, "error", resetErr)
		}
		return res, nil
	}

	if errors.Is(err, capture.ErrCancelled) || errors.Is(err, context.Canceled) {
		return capture.Result{}, err
	}
	if !allowRemedy {
		return capture.Result{}, err
	}

	c.logger.Warn("capture sequence failed, reloading player frame",
		"video", video.ID, "error", err)
	stopAnim()
	if reloadErr := c.cfg.Bridge.ReloadFrame(ctx); reloadErr != nil {
		return capture.Result{}, fmt.Errorf("%w (frame reload also failed: %v)", err, reloadErr)
	}
	if waitErr := sleepCtx(ctx, c.cfg.OpenSettle); waitErr != nil {
		return capture.Result{}, waitErr
	}
	return c.sequence(ctx, video, false)
}

// run is one pass of the setup steps plus the capture itself.
func (c *Controller) run(ctx context.Context, video locator.Video) (capture.Result, error) {
	if err := c.withRetry(ctx, "resolve frame", func() error {
		return c.cfg.Bridge.Prepare(ctx, video)
	}); err != nil {
		return capture.Result{}, err
	}
	c.progress.milestone(milestoneFrame)

	if err := c.withRetry(ctx, "open transcript", func() error {
		open, err := c.cfg.Bridge.IsTranscriptOpen(ctx)
		if err != nil {
			return err
		}
		if open {
			return nil
		}
		return c.cfg.Bridge.OpenTranscript(ctx)
	}); err != nil {
		return capture.Result{}, err
	}
	c.progress.milestone(milestonePanel)
	if err := sleepCtx(ctx, c.cfg.OpenSettle); err != nil {
		return capture.Result{}, err
	}

	if err := c.withRetry(ctx, "rewind transcript", func() error {
		return c.cfg.Bridge.ScrollToTop(ctx)
	}); err != nil {
		return capture.Result{}, err
	}
	c.progress.milestone(milestoneRewind)

	c.progress.startCapture(time.Now())
	return c.cfg.Bridge.Capture(ctx, video.Filename, c.progress.observe)
}

// withRetry attempts fn on a fixed spacing, giving up after the
// configured number of tries.
func (c *Controller) withRetry(ctx context.Context, step string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.StepRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		c.logger.Debug("step failed",
			"step", step, "attempt", attempt, "error", err)
		if attempt < c.cfg.StepRetries {
			if sleepErr := sleepCtx(ctx, c.cfg.RetrySpacing); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("%s: %w", step, err)
}

// animate renders progress until the session context ends.
func (c *Controller) animate(ctx context.Context, video locator.Video) {
	ticker := time.NewTicker(c.cfg.AnimationTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fraction, state, segments := c.progress.tick(now)
			c.cfg.Sink.Update(video, fraction, state, segments)
		}
	}
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
