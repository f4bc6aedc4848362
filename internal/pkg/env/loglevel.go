package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel reads VBK_LOG_LEVEL, or LOG_LEVEL when that is unset, and returns
// the matching slog.Level. Names are case-insensitive and accept slog offsets
// such as "debug-2"; "warning" is an alias for "warn". Unrecognised or empty
// values return fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("VBK_LOG_LEVEL", Get("LOG_LEVEL", "")))
	if raw == "" {
		return fallback
	}
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
