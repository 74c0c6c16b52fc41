package observability

import (
	"io"
	"log/slog"

	"github.com/querydesk/querydesk/internal/config"
)

// NewLogger builds the process-wide logger. Output is JSON unless configured
// otherwise, and the dev profile additionally records source positions.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Observability.LogLevel,
		AddSource: cfg.Profile == config.ProfileDev,
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}
