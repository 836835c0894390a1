package log

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs the process-wide slog.Logger writing text to stderr.
// debug=true selects Debug, verbose=true Info, otherwise Warn.
func Setup(debug bool, verbose bool) *slog.Logger {
	return SetupWriter(os.Stderr, debug, verbose)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, debug bool, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l
}
