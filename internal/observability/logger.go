package observability

import (
	"io"
	"log/slog"
	"strings"
)

// LogSettings is the subset of configuration the logger needs.
type LogSettings interface {
	LogLevelName() string
	LogFormatName() string
}

// NewLoggerTo builds a slog.Logger writing to w in the configured format
// ("json" or "text") and level. The server logs to stdout through the shared
// observability.NewLogger; this variant exists for the CLI, whose stdout
// carries command output.
func NewLoggerTo(w io.Writer, cfg LogSettings) *slog.Logger {
	return newLogger(w, cfg.LogLevelName(), cfg.LogFormatName())
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
