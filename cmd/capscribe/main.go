// CapScribe captures transcripts from lecture videos embedded in
// course pages. It attaches to a running browser over the DevTools
// protocol, finds the player iframe, opens its transcript panel,
// scrolls the lazily rendered cue list to the end, and saves the
// cleaned text next to optional SRT and HTML renderings.
//
// The browser must be started with remote debugging enabled, e.g.
// chromium --remote-debugging-port=9222.
//
// Usage:
//
//	capscribe scan               List videos on the active course page
//	capscribe capture [id]       Capture one video (default: the first)
//	capscribe capture --all      Capture every video on the page
//	capscribe serve              Start the control API server
//	capscribe version            Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mvanhorn/capscribe/internal/buildinfo"
	"github.com/mvanhorn/capscribe/internal/config"
	"github.com/mvanhorn/capscribe/internal/connwatch"
	"github.com/mvanhorn/capscribe/internal/control"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the capscribe command. All OS-level
// dependencies are injected as parameters; args is os.Args[1:]. We
// parse arguments by hand rather than using the flag package to avoid
// global state that interferes with parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "scan":
		return runScan(ctx, stdout, configPath, outputFmt)
	case "capture":
		return runCapture(ctx, stdout, configPath, cmdArgs)
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "CapScribe - lecture transcript capture agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: capscribe [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  scan           List videos on the active course page")
	fmt.Fprintln(w, "  capture [id]   Capture one video's transcript (default: first found)")
	fmt.Fprintln(w, "  capture --all  Capture every video on the page")
	fmt.Fprintln(w, "  serve          Start the control API server")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./capscribe.yaml, ~/.config/capscribe/config.yaml, /etc/capscribe/config.yaml")
	return nil
}

// runScan handles the "capscribe scan" subcommand: connect, read the
// active tab, and list the videos found there.
func runScan(ctx context.Context, stdout io.Writer, configPath, outputFmt string) error {
	a, logger, err := bootApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.coord.Close()

	if err := a.connect(ctx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	resp, err := a.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Count == 0 {
		fmt.Fprintln(stdout, "no videos found on the active page")
		return nil
	}
	for _, v := range resp.Videos {
		fmt.Fprintf(stdout, "%-10s %-12s %s\n", v.ID, v.VideoID, v.Title)
	}
	logger.Debug("scan finished", "videos", resp.Count)
	return nil
}

// runCapture handles "capscribe capture [id | --all]". It scans first
// so the video list is fresh, then captures synchronously.
func runCapture(ctx context.Context, stdout io.Writer, configPath string, cmdArgs []string) error {
	a, _, err := bootApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.coord.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	resp, err := a.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if resp.Count == 0 {
		return fmt.Errorf("no videos found on the active page")
	}

	if len(cmdArgs) > 0 && (cmdArgs[0] == "--all" || cmdArgs[0] == "-all") {
		a.mu.Lock()
		videos := make([]string, len(a.videos))
		for i, v := range a.videos {
			videos[i] = v.ID
		}
		a.mu.Unlock()

		failed := 0
		for _, id := range videos {
			if result := a.Process(ctx, id); !result.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d captures failed", failed, len(videos))
		}
		return nil
	}

	target := resp.Videos[0].ID
	if len(cmdArgs) > 0 {
		target = cmdArgs[0]
	}

	result := a.Process(ctx, target)
	if !result.Success {
		return fmt.Errorf("capture failed: %s", result.Error)
	}
	return nil
}

// runServe handles the "capscribe serve" subcommand. It is the
// long-running mode: a connwatch watcher keeps the browser connection
// alive, the control API accepts scan/capture commands, and optional
// auto-scan follows the course tab as the user browses.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The in-flight capture (if any) is cancelled
//  3. The HTTP server drains in-flight requests
//  4. The DevTools connection closes via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	a, logger, err := bootApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.coord.Close()

	logger.Info("starting CapScribe",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The browser may not be up yet; the watcher connects when it is
	// and reconnects when it comes back after a restart.
	watcher := connwatch.Watch(ctx, connwatch.WatcherConfig{
		Name:  "browser",
		Probe: a.probe(),
		OnReady: func() {
			if err := a.coord.Reconnect(ctx); err != nil {
				logger.Error("browser reconnect failed", "error", err)
				return
			}
			logger.Info("browser connected", "endpoint", a.cfg.Browser.Endpoint)
			if a.cfg.Control.AutoScan {
				go a.watchNavigation(ctx)
			}
		},
		OnDown: func(err error) {
			logger.Warn("browser endpoint lost", "error", err)
			a.controller.Cancel()
		},
		Logger: logger,
	})
	defer watcher.Stop()

	srv := control.NewServer(a.cfg.Control.Address, a.cfg.Control.Port, a, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		a.controller.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("control server: %w", err)
	}
}

// bootApp loads config, builds the logger, and wires the application.
func bootApp(stdout io.Writer, configPath string) (*app, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
	}
	logger := newLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath)

	a, err := newApp(cfg, stdout, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. A missing config
// is not fatal: the built-in defaults cover a local browser on the
// standard debugging port.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
