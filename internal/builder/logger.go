package builder

import (
	"io"
	"log/slog"
)

// newLogger creates the app's slog.Logger. Debug logging is off by default
// and switched on with --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
