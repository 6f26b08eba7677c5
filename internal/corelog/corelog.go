// Package corelog builds the process-wide slog.Logger every sandboxcore
// package takes as a constructor argument, following the pervasive
// log/slog usage throughout the teacher codebase (which leans on
// slog.Default() everywhere rather than building one logger and threading
// it through).
package corelog

import (
	"log/slog"
	"os"
)

// New builds a logger for env: "production" gets structured JSON on
// stdout at Info level, anything else gets slog's human-readable text
// handler at Debug level.
func New(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

// SetDefault builds a logger for env and installs it as slog's package
// default, so library code that still calls slog.Info/slog.Warn directly
// (rather than taking a *slog.Logger) picks up the same handler.
func SetDefault(env string) *slog.Logger {
	log := New(env)
	slog.SetDefault(log)
	return log
}
