// Package gateway exposes the HTTP surface: the Evolution webhook that
// feeds the message bus and a health endpoint.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/atendezap/atendezap/internal/bus"
	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/whatsapp"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Server receives webhook events, filters them and publishes the
// survivors to the message bus.
type Server struct {
	cfg         config.GatewayConfig
	router      bus.MessageRouter
	dedupe      *bus.DedupeCache
	rateLimiter *whatsapp.WebhookRateLimiter

	httpServer *http.Server
	muxOnce    sync.Once
	mux        *http.ServeMux
}

func NewServer(cfg config.GatewayConfig, router bus.MessageRouter) *Server {
	return &Server{
		cfg:         cfg,
		router:      router,
		dedupe:      bus.NewDedupeCache(20*time.Minute, 5000),
		rateLimiter: whatsapp.NewWebhookRateLimiter(cfg.RateLimitRPM),
	}
}

// BuildMux returns the route table. Cached so extra listeners (for
// example a tailnet listener) can serve the same handlers.
func (s *Server) BuildMux() *http.ServeMux {
	s.muxOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /webhook", s.handleWebhook)
		mux.HandleFunc("GET /health", s.handleHealth)
		s.mux = mux
	})
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("gateway shutdown failed", "error", err)
		}
	}()

	slog.Info("gateway listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleWebhook accepts one Evolution event. Invalid or ignored events
// are acknowledged with 200 so the provider does not retry them.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	msg, err := whatsapp.ParseEvent(body)
	switch {
	case errors.Is(err, whatsapp.ErrIgnored):
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, whatsapp.ErrInvalidEvent):
		slog.Warn("webhook event rejected", "error", err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("webhook parse failed", "error", err)
		http.Error(w, "parse failed", http.StatusBadRequest)
		return
	}

	if !s.rateLimiter.Allow(msg.SenderID) {
		slog.Warn("webhook rate limited", "sender", msg.SenderID)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	if s.dedupe.Seen(msg.ID) {
		slog.Debug("duplicate webhook event dropped", "id", msg.ID, "sender", msg.SenderID)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.router.PublishInbound(*msg)
	w.WriteHeader(http.StatusOK)
}

// authorized checks the shared webhook token when one is configured.
// Evolution sends it in the apikey header; a query parameter is also
// accepted for providers that cannot set headers.
func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.WebhookToken
	if token == "" {
		return true
	}

	got := r.Header.Get("apikey")
	if got == "" {
		got = r.URL.Query().Get("apikey")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
