package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries one line per
// DevTools command (the devtools client logs every Call at this
// level). During a capture that is four commands a second, so trace
// stays off unless a protocol exchange needs to be reconstructed.
// -8 matches how other slog users number a trace level.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the config file's log_level string to an
// [slog.Level]: trace, debug, info (the default, also for the empty
// string), warn or warning, and error. Anything else is an error;
// case and surrounding whitespace are ignored.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is a [slog.HandlerOptions.ReplaceAttr] that
// prints [LevelTrace] as TRACE instead of slog's fallback DEBUG-4.
// Wire it into whichever handler the entrypoint builds.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
