package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pbaity/herald/pkg/models"
)

var globalLogger *slog.Logger

// Init initializes the global logger based on application settings.
// It should be called once during application startup. If w is nil,
// output goes to stdout.
func Init(settings models.ApplicationSettings, w io.Writer) error {
	var level slog.Level
	switch strings.ToLower(settings.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // Default to Info level
	}

	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(settings.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		fallthrough // Fallthrough to default text handler
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger) // Set as default for convenience
	return nil
}

// L returns the initialized global logger instance.
func L() *slog.Logger {
	if globalLogger == nil {
		// Fallback to the default logger if not initialized, though Init
		// should always be called. This prevents nil pointer panics but
		// indicates a setup issue.
		return slog.Default()
	}
	return globalLogger
}
