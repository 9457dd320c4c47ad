package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON structured logger with level from string.
func New(level string) *slog.Logger {
	return NewWithFormat(level, "json")
}

// NewWithFormat returns a structured logger writing to stdout in the given format ("json" or "text").
func NewWithFormat(level, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: redact}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Attribute keys whose values never reach the log output.
var secretKeys = map[string]bool{
	"otp":           true,
	"token":         true,
	"authorization": true,
	"password":      true,
	"api_key":       true,
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}
