package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the application logger. format is "json" or "text".
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var programLevel slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		programLevel = slog.LevelDebug
	case "WARN":
		programLevel = slog.LevelWarn
	case "ERROR":
		programLevel = slog.LevelError
	default:
		programLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler.WithAttrs([]slog.Attr{slog.String("app", "posterize")}))
}
