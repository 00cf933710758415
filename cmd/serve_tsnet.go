//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"

	"github.com/atendezap/atendezap/internal/config"
)

// initTailscale joins the tailnet and serves the gateway mux on it, so
// the webhook is reachable without exposing a public port. Returns a
// cleanup function, or nil when Tailscale is not configured.
func initTailscale(ctx context.Context, cfg *config.Config, mux *http.ServeMux) func() {
	if cfg.Tailscale.Hostname == "" {
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Tailscale.Hostname,
		Dir:       config.ExpandHome(cfg.Tailscale.StateDir),
		AuthKey:   cfg.Tailscale.AuthKey,
		Ephemeral: cfg.Tailscale.Ephemeral,
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale listen failed", "hostname", cfg.Tailscale.Hostname, "error", err)
		srv.Close()
		return nil
	}

	go func() {
		slog.Info("tailscale listener up", "hostname", cfg.Tailscale.Hostname)
		if err := http.Serve(ln, mux); err != nil {
			slog.Debug("tailscale listener closed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	return func() { srv.Close() }
}
