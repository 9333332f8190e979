package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvanhorn/capscribe/internal/capture"
	"github.com/mvanhorn/capscribe/internal/config"
	"github.com/mvanhorn/capscribe/internal/control"
	"github.com/mvanhorn/capscribe/internal/coordinator"
	"github.com/mvanhorn/capscribe/internal/devtools"
	"github.com/mvanhorn/capscribe/internal/export"
	"github.com/mvanhorn/capscribe/internal/locator"
	"github.com/mvanhorn/capscribe/internal/orchestrator"
	"github.com/mvanhorn/capscribe/internal/panel"
	"github.com/mvanhorn/capscribe/internal/protocol"
)

// app wires the packages together. It implements orchestrator.Bridge
// (the browser side of a capture session), control.Backend (the HTTP
// API surface), and locator.BadgeNotifier.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	coord      *coordinator.Coordinator
	loc        *locator.Locator
	writer     *export.Writer
	opener     *panel.Opener
	controller *orchestrator.Controller
	sink       *consoleSink

	mu sync.Mutex
	// Session state between Bridge calls: the tab and frame the
	// current capture is bound to.
	tab     coordinator.Tab
	frame   *frameAdapter
	current locator.Video
	// Last scan results, addressable by id from the control API.
	videos     []locator.Video
	badgeCount int
	// Latest progress for the status endpoint, with batch position
	// when a process-all run is active.
	progress   *protocol.ProgressEvent
	batchIndex int
	batchTotal int
	busy       bool
	busyLabel  string
}

func newApp(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*app, error) {
	writer, err := export.NewWriter(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		coord: coordinator.New(coordinator.Config{
			Endpoint:       cfg.Browser.Endpoint,
			ProviderDomain: cfg.Provider.Domain,
			CourseDomain:   cfg.Provider.CourseDomain,
			CallTimeout:    time.Duration(cfg.Browser.CallTimeoutSec) * time.Second,
			Logger:         logger,
		}),
		writer: writer,
		opener: panel.NewOpener(logger),
		sink:   &consoleSink{out: stdout},
	}

	a.loc, err = locator.New(locator.Config{
		ProviderDomain: cfg.Provider.Domain,
		IDPattern:      cfg.Provider.IDPattern,
		Boilerplate:    cfg.Provider.Boilerplate,
		Notifier:       a,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	a.controller, err = orchestrator.NewController(orchestrator.Config{
		Bridge:      a,
		Sink:        &fanoutSink{sinks: []orchestrator.Sink{a.sink, (*statusSink)(a)}},
		StepRetries: cfg.Capture.StepRetries,
		OpenSettle:  cfg.CaptureSettle(),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// connect dials the browser. Called at startup and from the connwatch
// OnReady callback when the browser comes back.
func (a *app) connect(ctx context.Context) error {
	return a.coord.Connect(ctx)
}

// frameAdapter narrows a frame session to the interfaces the panel and
// capture packages consume.
type frameAdapter struct {
	fs *coordinator.FrameSession
}

func (f *frameAdapter) HTML(ctx context.Context) (string, error) { return f.fs.HTML(ctx) }
func (f *frameAdapter) ClickButton(ctx context.Context, index int) error {
	return f.fs.ClickButton(ctx, index)
}
func (f *frameAdapter) ScrollBy(ctx context.Context, px float64) error { return f.fs.ScrollBy(ctx, px) }
func (f *frameAdapter) ScrollToTop(ctx context.Context) error          { return f.fs.ScrollToTop(ctx) }
func (f *frameAdapter) ScrollMetrics(ctx context.Context) (capture.Metrics, error) {
	m, err := f.fs.ScrollMetrics(ctx)
	if err != nil {
		return capture.Metrics{}, err
	}
	return capture.Metrics(m), nil
}

// --- orchestrator.Bridge ---

func (a *app) Prepare(ctx context.Context, video locator.Video) error {
	tab, err := a.coord.ResolveActiveTab(ctx)
	if err != nil {
		return err
	}

	// Raise the tab so the user sees the capture happen. Best effort.
	if err := a.coord.ActivateTab(ctx, tab); err != nil {
		a.logger.Debug("activate tab", "error", err)
	}

	frame, err := a.coord.ResolveFrame(ctx, tab, video.ProviderVideoID, video.SourceURL)
	if err != nil {
		return err
	}

	fs, err := a.coord.FrameSession(ctx, tab, frame)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.tab = tab
	a.frame = &frameAdapter{fs: fs}
	a.current = video
	a.mu.Unlock()
	return nil
}

func (a *app) sessionFrame() (*frameAdapter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frame == nil {
		return nil, fmt.Errorf("no frame session; Prepare not called")
	}
	return a.frame, nil
}

func (a *app) IsTranscriptOpen(ctx context.Context) (bool, error) {
	f, err := a.sessionFrame()
	if err != nil {
		return false, err
	}
	return a.opener.IsOpen(ctx, f)
}

func (a *app) OpenTranscript(ctx context.Context) error {
	f, err := a.sessionFrame()
	if err != nil {
		return err
	}
	return a.opener.Open(ctx, f)
}

func (a *app) ScrollToTop(ctx context.Context) error {
	f, err := a.sessionFrame()
	if err != nil {
		return err
	}
	return f.ScrollToTop(ctx)
}

func (a *app) Capture(ctx context.Context, fileName string, report capture.ReportFunc) (capture.Result, error) {
	f, err := a.sessionFrame()
	if err != nil {
		return capture.Result{}, err
	}

	driver := capture.NewDriver(capture.Config{
		Tick:           a.cfg.CaptureTick(),
		InitialSettle:  a.cfg.CaptureSettle(),
		NearBottomPx:   a.cfg.Capture.NearBottomPx,
		EndStableTicks: a.cfg.Capture.EndStableTicks,
		MaxTicks:       a.cfg.Capture.MaxTicks,
		Timeout:        a.cfg.CaptureTimeout(),
		Report:         report,
		Saver:          a.writer,
		Logger:         a.logger,
	})

	res, err := driver.Run(ctx, f, fileName)
	if err != nil {
		return res, err
	}

	a.mu.Lock()
	video := a.current
	a.mu.Unlock()

	// Derived formats ride along with the primary .txt file.
	if _, err := a.writer.SaveFormats(res.FileName, a.cfg.Output.Formats, video.Title, res.Text, res.Cues); err != nil {
		a.logger.Warn("derived export failed", "error", err)
	}
	return res, nil
}

func (a *app) ResetPanel(ctx context.Context) error {
	f, err := a.sessionFrame()
	if err != nil {
		return err
	}
	return a.opener.Reset(ctx, f)
}

func (a *app) ReloadFrame(ctx context.Context) error {
	a.mu.Lock()
	frame := a.frame
	a.frame = nil // session is stale after the reload
	a.mu.Unlock()

	if frame == nil {
		return fmt.Errorf("no frame session to reload")
	}
	return a.coord.ReloadFrame(ctx, frame.fs)
}

// --- locator.BadgeNotifier ---

func (a *app) UpdateBadge(count int) {
	a.mu.Lock()
	a.badgeCount = count
	a.mu.Unlock()
}

// --- control.Backend ---

func (a *app) Scan(ctx context.Context) (protocol.ScanResponse, error) {
	tab, err := a.coord.ResolveActiveTab(ctx)
	if err != nil {
		return protocol.ScanResponse{}, err
	}

	html, err := a.coord.TopDocument(ctx, tab)
	if err != nil {
		return protocol.ScanResponse{}, err
	}

	videos, err := a.loc.Detect(html)
	if err != nil {
		return protocol.ScanResponse{}, err
	}

	a.mu.Lock()
	a.videos = videos
	a.mu.Unlock()

	resp := protocol.ScanResponse{Count: len(videos)}
	for _, v := range videos {
		resp.Videos = append(resp.Videos, protocol.VideoSummary{
			ID:       v.ID,
			VideoID:  v.ProviderVideoID,
			Title:    v.Title,
			Filename: v.Filename,
		})
	}
	return resp, nil
}

func (a *app) findVideo(id string) (locator.Video, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.videos {
		if v.ID == id || v.ProviderVideoID == id {
			return v, true
		}
	}
	return locator.Video{}, false
}

func (a *app) Process(ctx context.Context, videoID string) protocol.CaptureResult {
	video, ok := a.findVideo(videoID)
	if !ok {
		return protocol.CaptureResult{
			Success: false,
			Error:   fmt.Sprintf("unknown video %q; run a scan first", videoID),
		}
	}

	a.setBusy(true, video.ID)
	defer a.setBusy(false, "")

	res, err := a.controller.Process(ctx, video)
	if err != nil {
		return protocol.CaptureResult{Success: false, Error: err.Error()}
	}
	return protocol.CaptureResult{
		Success:  true,
		FileName: res.FileName,
		Path:     res.Path,
		Segments: res.Segments,
		Reason:   res.Reason,
	}
}

func (a *app) ProcessAll(ctx context.Context) error {
	a.mu.Lock()
	videos := make([]locator.Video, len(a.videos))
	copy(videos, a.videos)
	busy := a.busy
	a.mu.Unlock()

	if len(videos) == 0 {
		return fmt.Errorf("no videos known; run a scan first")
	}
	if busy {
		return fmt.Errorf("a capture is already running")
	}

	batchID := uuid.New().String()[:8]
	a.logger.Info("starting batch capture", "batch", batchID, "videos", len(videos))

	// The control handler only acks; the batch runs detached from the
	// request context.
	go func() {
		a.setBusy(true, "batch-"+batchID)
		defer a.setBusy(false, "")

		outcomes := a.controller.ProcessAll(context.Background(), videos)
		ok := 0
		for _, o := range outcomes {
			if o.Err == nil {
				ok++
			}
		}
		a.logger.Info("batch capture finished",
			"batch", batchID, "succeeded", ok, "failed", len(outcomes)-ok)
	}()
	return nil
}

func (a *app) Cancel() {
	a.controller.Cancel()
}

// Reload hard-reloads the course tab on explicit request. Frame
// sessions do not survive the reload; the next capture re-resolves.
func (a *app) Reload(ctx context.Context) error {
	tab, err := a.coord.ResolveActiveTab(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.frame = nil
	a.mu.Unlock()

	return a.coord.ReloadTab(ctx, tab)
}

func (a *app) Status() control.Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := control.Status{
		Busy:       a.busy,
		Video:      a.busyLabel,
		VideoCount: len(a.videos),
	}
	if a.progress != nil {
		p := *a.progress
		s.Progress = &p
	}
	return s
}

func (a *app) setBusy(busy bool, label string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = busy
	a.busyLabel = label
	if !busy {
		a.progress = nil
		a.batchIndex = 0
		a.batchTotal = 0
	}
}

// --- progress sinks ---

// statusSink folds progress into the app's status, for the poll API.
type statusSink app

func (s *statusSink) Begin(locator.Video) {}

func (s *statusSink) Batch(index, total int) {
	a := (*app)(s)
	a.mu.Lock()
	a.batchIndex = index
	a.batchTotal = total
	a.mu.Unlock()
}

func (s *statusSink) Update(video locator.Video, fraction float64, state capture.State, segments int) {
	a := (*app)(s)
	a.mu.Lock()
	a.progress = &protocol.ProgressEvent{
		Action:     protocol.ActionProgress,
		VideoID:    video.ID,
		Fraction:   fraction,
		State:      string(state),
		Segments:   segments,
		BatchIndex: a.batchIndex,
		BatchTotal: a.batchTotal,
	}
	a.mu.Unlock()
}

func (s *statusSink) Fail(locator.Video, error)         {}
func (s *statusSink) End(locator.Video, capture.Result) {}

// consoleSink renders capture progress to stdout, one line per whole
// percent so the output stays readable in a scrollback buffer.
type consoleSink struct {
	out io.Writer

	mu          sync.Mutex
	lastPercent int
}

func (s *consoleSink) Begin(video locator.Video) {
	s.mu.Lock()
	s.lastPercent = -1
	s.mu.Unlock()
	fmt.Fprintf(s.out, "capturing %q (%s)\n", video.Title, video.ProviderVideoID)
}

func (s *consoleSink) Batch(index, total int) {
	fmt.Fprintf(s.out, "video %d of %d (batch %d%%)\n", index, total, (index-1)*100/total)
}

func (s *consoleSink) Update(_ locator.Video, fraction float64, state capture.State, segments int) {
	percent := int(math.Round(fraction * 100))

	s.mu.Lock()
	changed := percent != s.lastPercent
	if changed {
		s.lastPercent = percent
	}
	s.mu.Unlock()
	if !changed {
		return
	}

	bar := strings.Repeat("█", percent/5) + strings.Repeat("░", 20-percent/5)
	fmt.Fprintf(s.out, "  [%s] %3d%%  %s (%d segments)\n", bar, percent, state, segments)
}

func (s *consoleSink) Fail(video locator.Video, err error) {
	fmt.Fprintf(s.out, "capture of %q failed: %v\n", video.Title, err)
}

func (s *consoleSink) End(video locator.Video, res capture.Result) {
	fmt.Fprintf(s.out, "saved %s (%d segments, %s)\n", res.Path, res.Segments, res.Reason)
}

// fanoutSink duplicates sink calls to several sinks.
type fanoutSink struct {
	sinks []orchestrator.Sink
}

func (f *fanoutSink) Begin(v locator.Video) {
	for _, s := range f.sinks {
		s.Begin(v)
	}
}

func (f *fanoutSink) Batch(index, total int) {
	for _, s := range f.sinks {
		s.Batch(index, total)
	}
}

func (f *fanoutSink) Update(v locator.Video, fraction float64, state capture.State, segments int) {
	for _, s := range f.sinks {
		s.Update(v, fraction, state, segments)
	}
}

func (f *fanoutSink) Fail(v locator.Video, err error) {
	for _, s := range f.sinks {
		s.Fail(v, err)
	}
}

func (f *fanoutSink) End(v locator.Video, res capture.Result) {
	for _, s := range f.sinks {
		s.End(v, res)
	}
}

// watchNavigation re-scans the course tab when it navigates, so the
// video list and badge stay fresh without manual rescans. Navigation
// events arrive in bursts (redirects, iframes loading), so the scan is
// debounced.
func (a *app) watchNavigation(ctx context.Context) {
	settle := time.Duration(a.cfg.Control.ScanSettleMS) * time.Millisecond
	events := a.coord.Client().Events()

	var timer *time.Timer
	scan := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Method != "Page.frameNavigated" && ev.Method != "Page.loadEventFired" {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, func() {
				select {
				case scan <- struct{}{}:
				default:
				}
			})
		case <-scan:
			if _, err := a.Scan(ctx); err != nil {
				a.logger.Debug("auto-scan failed", "error", err)
			}
		}
	}
}

// probe returns the connwatch probe for the configured endpoint.
func (a *app) probe() func(ctx context.Context) error {
	return devtools.Probe(devtools.NormalizeEndpoint(a.cfg.Browser.Endpoint))
}
