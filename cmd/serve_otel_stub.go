//go:build !otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/atendezap/atendezap/internal/config"
)

// initTelemetry is a no-op unless built with -tags otel.
func initTelemetry(_ context.Context, cfg *config.Config) func(context.Context) error {
	if cfg.Telemetry.Enabled {
		slog.Warn("telemetry enabled in config but binary was built without -tags otel")
	}
	return nil
}
