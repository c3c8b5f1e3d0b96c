package observability

import (
	"log/slog"
	"os"

	"github.com/pegelwacht/pegel-monitor/internal/config"
)

// NewLogger builds the service logger from config. LOG_FORMAT selects a JSON
// (default) or text handler; LOG_LEVEL maps onto slog levels with info as the
// fallback for unknown values.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
