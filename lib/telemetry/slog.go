package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the process-wide slog handler. Verbose mode enables
// debug lines, which also unlocks the restyutil HTTP transcripts.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
