//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/tracing"
)

// initTelemetry installs the OTLP trace exporter when telemetry is
// enabled. Returns the provider shutdown function, or nil.
func initTelemetry(ctx context.Context, cfg *config.Config) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	if cfg.Telemetry.Endpoint == "" {
		slog.Warn("telemetry enabled but no endpoint configured")
		return nil
	}

	shutdown, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		return nil
	}
	slog.Info("telemetry enabled",
		"endpoint", cfg.Telemetry.Endpoint, "protocol", cfg.Telemetry.Protocol)
	return shutdown
}
