// Package coordinator resolves browser-side locations (the active
// course tab and the player iframe inside it) and hands out frame
// sessions the capture pipeline drives. It is the only package that
// talks to the devtools client directly; everything above it works
// against tabs, frames, and small DOM primitives.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mvanhorn/capscribe/internal/devtools"
)

var (
	// ErrNotConnected means no devtools connection exists yet. In serve
	// mode the control API is up before the browser is, so this is a
	// normal answer, not a programming error.
	ErrNotConnected = errors.New("browser not connected")
	// ErrTabNotFound means no open tab matched the course domain.
	ErrTabNotFound = errors.New("no matching tab found")
	// ErrFrameNotFound means the tab has no player iframe for the
	// requested video.
	ErrFrameNotFound = errors.New("player frame not found in tab")
)

// Config carries the browser endpoint and the domains used to pick
// tabs and frames.
type Config struct {
	// Endpoint is the DevTools HTTP endpoint, e.g. 127.0.0.1:9222.
	Endpoint string
	// ProviderDomain identifies player iframes by URL substring.
	ProviderDomain string
	// CourseDomain narrows tab resolution; empty means any page tab.
	CourseDomain string
	CallTimeout  time.Duration
	Logger       *slog.Logger
}

// Tab is a resolved page target.
type Tab struct {
	TargetID string
	URL      string
	Title    string
}

// Coordinator owns the devtools connection and the per-target session
// cache. Callers run concurrently: HTTP handlers, the batch goroutine,
// the auto-scan goroutine, and the connection watcher all arrive here.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	// mu guards client and sessions. client is nil until the first
	// successful Connect; sessions are attached session ids keyed by
	// target id. Sessions survive frame reloads but not tab closes or
	// reconnects; a failed call drops the entry.
	mu       sync.Mutex
	client   *devtools.Client
	sessions map[string]string
}

// New creates an unconnected coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]string),
	}
}

// Connect discovers the browser's WebSocket URL and dials it.
func (co *Coordinator) Connect(ctx context.Context) error {
	endpoint := devtools.NormalizeEndpoint(co.cfg.Endpoint)
	wsURL, err := devtools.DiscoverBrowserURL(ctx, endpoint)
	if err != nil {
		return err
	}

	client := devtools.NewClient(wsURL, co.cfg.CallTimeout, co.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	co.mu.Lock()
	co.client = client
	co.sessions = make(map[string]string)
	co.mu.Unlock()
	return nil
}

// Reconnect re-dials after the browser came back. Cached sessions are
// invalid on the new connection and are dropped.
func (co *Coordinator) Reconnect(ctx context.Context) error {
	co.mu.Lock()
	client := co.client
	co.sessions = make(map[string]string)
	co.mu.Unlock()

	if client == nil {
		return co.Connect(ctx)
	}
	// The debugger URL is stable per browser process, so the existing
	// client can re-dial the address it already has.
	return client.Reconnect(ctx)
}

// Close shuts the devtools connection.
func (co *Coordinator) Close() error {
	co.mu.Lock()
	client := co.client
	co.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// Client exposes the underlying devtools client for event consumers.
// Nil before the first successful Connect.
func (co *Coordinator) Client() *devtools.Client {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.client
}

// activeClient returns the connected client or ErrNotConnected. Every
// protocol operation goes through here so an early API request gets an
// error result, never a nil dereference.
func (co *Coordinator) activeClient() (*devtools.Client, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.client == nil {
		return nil, ErrNotConnected
	}
	return co.client, nil
}

// ResolveActiveTab picks the tab the user is working in: the first
// page target whose URL contains the course domain, falling back to
// the first page target at all. Chrome lists targets most recently
// active first.
func (co *Coordinator) ResolveActiveTab(ctx context.Context) (Tab, error) {
	client, err := co.activeClient()
	if err != nil {
		return Tab{}, err
	}

	targets, err := client.GetTargets(ctx)
	if err != nil {
		return Tab{}, err
	}

	var fallback *devtools.TargetInfo
	for i, t := range targets {
		if t.Type != "page" {
			continue
		}
		if co.cfg.CourseDomain != "" && strings.Contains(t.URL, co.cfg.CourseDomain) {
			return Tab{TargetID: t.TargetID, URL: t.URL, Title: t.Title}, nil
		}
		if fallback == nil {
			fallback = &targets[i]
		}
	}

	if co.cfg.CourseDomain == "" && fallback != nil {
		return Tab{TargetID: fallback.TargetID, URL: fallback.URL, Title: fallback.Title}, nil
	}
	return Tab{}, fmt.Errorf("%w (course domain %q)", ErrTabNotFound, co.cfg.CourseDomain)
}

// session returns the attached session for a tab, attaching and
// enabling the Page domain on first use. The attach happens outside
// the lock; two racing callers may both attach, and the later store
// wins with an equivalent session.
func (co *Coordinator) session(ctx context.Context, targetID string) (string, error) {
	co.mu.Lock()
	client := co.client
	s, ok := co.sessions[targetID]
	co.mu.Unlock()

	if client == nil {
		return "", ErrNotConnected
	}
	if ok {
		return s, nil
	}

	s, err := client.AttachToTarget(ctx, targetID)
	if err != nil {
		return "", fmt.Errorf("attach to tab: %w", err)
	}
	if err := client.EnablePage(ctx, s); err != nil {
		return "", fmt.Errorf("enable page domain: %w", err)
	}

	co.mu.Lock()
	co.sessions[targetID] = s
	co.mu.Unlock()
	co.logger.Debug("attached to tab", "target", targetID, "session", s)
	return s, nil
}

// DropSession forgets the cached session for a tab, forcing a fresh
// attach on next use. Called after a call fails with a session error.
func (co *Coordinator) DropSession(targetID string) {
	co.mu.Lock()
	delete(co.sessions, targetID)
	co.mu.Unlock()
}

// ResolveFrame finds the player iframe in a tab. A non-empty videoID
// must appear in the frame URL; a non-empty urlFragment (the iframe's
// src as seen in the page) is an alternative match for players whose
// embed URL hides the id.
func (co *Coordinator) ResolveFrame(ctx context.Context, tab Tab, videoID, urlFragment string) (devtools.Frame, error) {
	client, err := co.activeClient()
	if err != nil {
		return devtools.Frame{}, err
	}

	s, err := co.session(ctx, tab.TargetID)
	if err != nil {
		return devtools.Frame{}, err
	}

	frames, err := client.FrameTree(ctx, s)
	if err != nil {
		co.DropSession(tab.TargetID)
		return devtools.Frame{}, fmt.Errorf("frame tree: %w", err)
	}

	for _, f := range frames {
		if !strings.Contains(f.URL, co.cfg.ProviderDomain) {
			continue
		}
		if videoID != "" && strings.Contains(f.URL, videoID) {
			return f, nil
		}
		if urlFragment != "" && strings.Contains(f.URL, urlFragment) {
			return f, nil
		}
		if videoID == "" && urlFragment == "" {
			return f, nil
		}
	}
	return devtools.Frame{}, fmt.Errorf("%w (video %q)", ErrFrameNotFound, videoID)
}

// FrameSession opens an isolated world in a frame and returns the
// handle the panel and capture packages drive.
func (co *Coordinator) FrameSession(ctx context.Context, tab Tab, frame devtools.Frame) (*FrameSession, error) {
	client, err := co.activeClient()
	if err != nil {
		return nil, err
	}

	s, err := co.session(ctx, tab.TargetID)
	if err != nil {
		return nil, err
	}

	contextID, err := client.CreateIsolatedWorld(ctx, s, frame.ID, "capscribe")
	if err != nil {
		return nil, fmt.Errorf("create isolated world: %w", err)
	}

	return &FrameSession{
		client:    client,
		sessionID: s,
		contextID: contextID,
		frameID:   frame.ID,
	}, nil
}

// TopDocument returns the full HTML of the tab's main frame, for the
// locator's iframe scan.
func (co *Coordinator) TopDocument(ctx context.Context, tab Tab) (string, error) {
	client, err := co.activeClient()
	if err != nil {
		return "", err
	}

	s, err := co.session(ctx, tab.TargetID)
	if err != nil {
		return "", err
	}

	var html string
	err = client.Evaluate(ctx, s, 0, "document.documentElement.outerHTML", &html)
	if err != nil {
		co.DropSession(tab.TargetID)
		return "", fmt.Errorf("read tab document: %w", err)
	}
	return html, nil
}

// ReloadFrame reloads just the player frame by navigating it to its
// own URL from inside. The tab and its session stay alive, so the
// retry path only has to re-resolve the frame and reopen the panel.
func (co *Coordinator) ReloadFrame(ctx context.Context, fs *FrameSession) error {
	client, err := co.activeClient()
	if err != nil {
		return err
	}
	return client.Evaluate(ctx, fs.sessionID, fs.contextID, "location.reload()", nil)
}

// ReloadTab hard-reloads the whole tab. Everything cached for it,
// frame sessions included, is stale afterwards.
func (co *Coordinator) ReloadTab(ctx context.Context, tab Tab) error {
	client, err := co.activeClient()
	if err != nil {
		return err
	}

	s, err := co.session(ctx, tab.TargetID)
	if err != nil {
		return err
	}
	if err := client.Reload(ctx, s); err != nil {
		co.DropSession(tab.TargetID)
		return err
	}
	return nil
}

// ActivateTab raises the tab so the user sees the capture happen.
func (co *Coordinator) ActivateTab(ctx context.Context, tab Tab) error {
	client, err := co.activeClient()
	if err != nil {
		return err
	}
	return client.ActivateTarget(ctx, tab.TargetID)
}
