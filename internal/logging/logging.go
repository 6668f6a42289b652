// Package logging configures structured logging for videoup using log/slog.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Service is attached to every record as the "service" attribute.
const Service = "videoup"

// ParseLevel maps a level name to a slog.Level.
// Supported levels: "debug", "info", "warn", "error" (default: "info").
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger writing to w. format is "json" or "text" (default).
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", Service))
}

// Setup installs New(level, format, w) as the default logger.
func Setup(level, format string, w io.Writer) {
	slog.SetDefault(New(level, format, w))
}

// Upload groups the identifiers of one multipart session so that every
// record about it carries upload.key and upload.id.
func Upload(key, uploadID string) slog.Attr {
	return slog.Group("upload", slog.String("key", key), slog.String("id", uploadID))
}
