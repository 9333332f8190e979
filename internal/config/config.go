// Package config handles CapScribe configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./capscribe.yaml, ~/.config/capscribe/config.yaml,
// /etc/capscribe/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"capscribe.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "capscribe", "config.yaml"))
	}

	paths = append(paths, "/etc/capscribe/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CapScribe configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Provider ProviderConfig `yaml:"provider"`
	Capture  CaptureConfig  `yaml:"capture"`
	Output   OutputConfig   `yaml:"output"`
	Control  ControlConfig  `yaml:"control"`
	LogLevel string         `yaml:"log_level"`
}

// BrowserConfig defines the DevTools connection.
type BrowserConfig struct {
	// Endpoint is the browser's remote debugging address,
	// e.g. 127.0.0.1:9222 (launch the browser with
	// --remote-debugging-port=9222).
	Endpoint string `yaml:"endpoint"`
	// CallTimeoutSec bounds a single protocol round-trip (default 30).
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

// ProviderConfig defines how videos are recognized on course pages.
type ProviderConfig struct {
	// Domain selects player iframes by URL substring.
	Domain string `yaml:"domain"`
	// IDPattern overrides the video-id regexp; group 1 is the id.
	IDPattern string `yaml:"id_pattern"`
	// CourseDomain narrows tab resolution to the LMS host.
	CourseDomain string `yaml:"course_domain"`
	// Boilerplate lists title fragments to strip from video titles.
	Boilerplate []string `yaml:"boilerplate"`
}

// CaptureConfig tunes the scroll-capture loop. Zero values use the
// built-in defaults.
type CaptureConfig struct {
	// TickMS is the scroll cadence in milliseconds (default 250).
	TickMS int `yaml:"tick_ms"`
	// SettleMS waits for the panel's first cues (default 1000).
	SettleMS int `yaml:"settle_ms"`
	// NearBottomPx treats the scroller as finished within this slack
	// of the bottom (default 10).
	NearBottomPx float64 `yaml:"near_bottom_px"`
	// EndStableTicks is how many stuck ticks confirm the end (default 3).
	EndStableTicks int `yaml:"end_stable_ticks"`
	// MaxTicks caps one capture's scroll steps (default 250).
	MaxTicks int `yaml:"max_ticks"`
	// TimeoutSec is the per-capture safety net (default 45).
	TimeoutSec int `yaml:"timeout_sec"`
	// StepRetries is per-step retry count before the frame-reload
	// remedy (default 3).
	StepRetries int `yaml:"step_retries"`
}

// OutputConfig defines where transcripts land.
type OutputConfig struct {
	// Dir is the transcript output directory (default ".").
	Dir string `yaml:"dir"`
	// Formats are the export formats: txt, srt, html (default txt).
	Formats []string `yaml:"formats"`
}

// ControlConfig defines the local control API server.
type ControlConfig struct {
	Address string `yaml:"address"` // Bind address (default: 127.0.0.1)
	Port    int    `yaml:"port"`
	// AutoScan re-scans the course tab when it navigates.
	AutoScan bool `yaml:"auto_scan"`
	// ScanSettleMS debounces navigation before the re-scan (default 1500).
	ScanSettleMS int `yaml:"scan_settle_ms"`
}

// Load reads configuration from a YAML file. A .env file in the
// working directory is loaded first so ${VAR} references in the YAML
// can point at it.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it's an optional override mechanism.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Endpoint:       "127.0.0.1:9222",
			CallTimeoutSec: 30,
		},
		Provider: ProviderConfig{
			Domain: "vimeo.com",
		},
		Capture: CaptureConfig{
			TickMS:         250,
			SettleMS:       1000,
			NearBottomPx:   10,
			EndStableTicks: 3,
			MaxTicks:       250,
			TimeoutSec:     45,
			StepRetries:    3,
		},
		Output: OutputConfig{
			Dir:     ".",
			Formats: []string{"txt"},
		},
		Control: ControlConfig{
			Address:      "127.0.0.1",
			Port:         8694,
			ScanSettleMS: 1500,
		},
	}
}

// CaptureTick returns the scroll cadence as a duration.
func (c *Config) CaptureTick() time.Duration {
	return time.Duration(c.Capture.TickMS) * time.Millisecond
}

// CaptureSettle returns the panel settle delay as a duration.
func (c *Config) CaptureSettle() time.Duration {
	return time.Duration(c.Capture.SettleMS) * time.Millisecond
}

// CaptureTimeout returns the per-capture safety timeout as a duration.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutSec) * time.Second
}
