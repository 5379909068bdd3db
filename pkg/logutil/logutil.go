// Package logutil configures the process logger and times operations.
package logutil

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Init installs a colored slog handler on stderr as the default logger
func Init(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(New(os.Stderr, level))
}

// New returns a tint logger writing to w
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// Timed logs "Starting: label" and returns a func that logs
// "Completed: label" with the elapsed time.
func Timed(logger *slog.Logger, label string) func() time.Duration {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	logger.Info("Starting: " + label)

	return func() time.Duration {
		elapsed := time.Since(start)
		logger.Info("Completed: "+label, "elapsed", elapsed.Round(time.Millisecond))
		return elapsed
	}
}
