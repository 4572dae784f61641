package logger

import (
	"log/slog"
	"os"
)

// New returns the structured logger used across the engine. JSON output so
// ingestion-run reports aggregate cleanly.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
