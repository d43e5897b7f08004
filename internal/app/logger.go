package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
)

// NewLogger builds the process logger. FSH_LOG_FORMAT=json switches to
// structured output.
func NewLogger(s *config.Settings) *slog.Logger {
	return newLogger(os.Stderr, s)
}

func newLogger(w io.Writer, s *config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: s.IsProduction()}
	if s != nil && s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
