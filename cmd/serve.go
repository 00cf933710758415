package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atendezap/atendezap/internal/agent"
	"github.com/atendezap/atendezap/internal/bus"
	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/gateway"
	"github.com/atendezap/atendezap/internal/knowledge"
	"github.com/atendezap/atendezap/internal/media"
	"github.com/atendezap/atendezap/internal/pipeline"
	"github.com/atendezap/atendezap/internal/providers"
	"github.com/atendezap/atendezap/internal/queue"
	"github.com/atendezap/atendezap/internal/store"
	"github.com/atendezap/atendezap/internal/store/calendar"
	"github.com/atendezap/atendezap/internal/store/pg"
	"github.com/atendezap/atendezap/internal/store/sqlite"
	"github.com/atendezap/atendezap/internal/tools"
	"github.com/atendezap/atendezap/internal/whatsapp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and message pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Stores: Postgres in managed mode, sqlite standalone.
	var stores *store.Stores
	if cfg.IsManagedMode() {
		stores, err = pg.NewPGStores(cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("postgres stores init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("stores ready", "backend", "postgres")
	} else {
		stores, err = sqlite.NewSQLiteStores(cfg.StatePath())
		if err != nil {
			slog.Error("sqlite stores init failed", "state_dir", cfg.StatePath(), "error", err)
			os.Exit(1)
		}
		slog.Info("stores ready", "backend", "sqlite", "state_dir", cfg.StatePath())
	}

	// External calendar takes over appointments when configured.
	appointments := stores.Appointments
	if cfg.Scheduling.CalendarURL != "" {
		appointments = calendar.New(cfg.Scheduling.CalendarURL)
		slog.Info("scheduling backed by external calendar", "url", cfg.Scheduling.CalendarURL)
	}

	if cfg.Provider.APIKey == "" {
		slog.Error("ATENDEZAP_OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	provider := providers.NewOpenAIProvider(
		"openai",
		cfg.Provider.APIKey,
		cfg.Provider.BaseURL,
		cfg.Provider.Model,
		time.Duration(cfg.Provider.RequestTimeoutSec)*time.Second,
		cfg.Provider.RateLimitRPM,
	).
		WithTranscribeModel(cfg.Provider.TranscribeModel).
		WithEmbeddingModel(cfg.Provider.EmbeddingModel)

	registry := tools.NewRegistry()

	scheduling, err := tools.NewSchedulingTool(appointments, cfg.Scheduling)
	if err != nil {
		slog.Error("scheduling tool init failed", "error", err)
		os.Exit(1)
	}
	registry.Register(scheduling)

	if cfg.Knowledge.Enabled {
		ks, err := knowledge.NewStore(cfg.Knowledge, provider)
		if err != nil {
			slog.Error("knowledge store init failed", "error", err)
			os.Exit(1)
		}
		defer ks.Close()
		registry.Register(tools.NewKnowledgeTool(ks, cfg.Knowledge.TopK))
		slog.Info("knowledge base enabled",
			"qdrant", fmt.Sprintf("%s:%d", cfg.Knowledge.QdrantHost, cfg.Knowledge.QdrantPort),
			"collection", cfg.Knowledge.Collection)
	}

	loop := agent.NewLoop(provider, registry, stores.History, agent.Config{
		AgentName:     cfg.Agent.Name,
		CompanyName:   cfg.Agent.CompanyName,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Model:         cfg.Provider.Model,
		MaxIterations: cfg.Agent.MaxToolIterations,
		TurnTimeout:   time.Duration(cfg.Agent.TurnTimeoutSec) * time.Second,
		HistoryLoad:   cfg.Agent.HistoryLoad,
		HistoryRender: cfg.Agent.HistoryRender,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
	})

	msgBus := bus.NewMessageBus()

	// Transport: Evolution HTTP by default, websocket bridge when
	// configured. Media fetching always goes through the HTTP client.
	waClient := whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.Instance, cfg.WhatsApp.APIKey)
	var transport pipeline.Transport = waClient
	var bridge *whatsapp.Bridge
	if cfg.WhatsApp.Transport == "bridge" {
		bridge, err = whatsapp.NewBridge(cfg.WhatsApp.BridgeURL, msgBus)
		if err != nil {
			slog.Error("whatsapp bridge init failed", "error", err)
			os.Exit(1)
		}
		transport = bridge
	}

	normalizer := media.NewNormalizer(waClient, provider, provider, cfg.Provider.VisionModel)

	pipe := pipeline.New(stores.Clients, normalizer, queue.NewSenderQueue(), loop, transport, pipeline.Config{
		DebounceWindow:  time.Duration(cfg.Queue.DebounceMs) * time.Millisecond,
		MaxPending:      cfg.Queue.MaxPending,
		MaxMessageChars: cfg.Gateway.MaxMessageChars,
		// Outlives the agent's own deadline so the turn can still
		// deliver its fallback after a timeout.
		TurnTimeout: time.Duration(cfg.Agent.TurnTimeoutSec)*time.Second + 30*time.Second,
	})

	server := gateway.NewServer(cfg.Gateway, msgBus)

	// OTLP export: compiled via build tags. Build with 'go build -tags otel' to enable.
	if shutdown := initTelemetry(ctx, cfg); shutdown != nil {
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Tailnet listener serves the same mux. Build with -tags tsnet.
	if cleanup := initTailscale(ctx, cfg, server.BuildMux()); cleanup != nil {
		defer cleanup()
	}

	// Config file changes are picked up on restart; the watcher only
	// surfaces them.
	if watcher, werr := config.NewWatcher(cfgPath, func(_ *config.Config) {
		slog.Info("config file changed, restart to apply", "path", cfgPath)
	}); werr == nil {
		go watcher.Run(ctx)
	} else {
		slog.Debug("config watcher unavailable", "error", werr)
	}

	slog.Info("atendezap starting",
		"version", Version,
		"agent", cfg.Agent.Name,
		"model", cfg.Provider.Model,
		"transport", cfg.WhatsApp.Transport,
		"tools", len(registry.Definitions()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return pipe.Run(gctx, msgBus) })
	if bridge != nil {
		g.Go(func() error { return bridge.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		slog.Error("gateway error", "error", err)
		pipe.Shutdown()
		os.Exit(1)
	}
	pipe.Shutdown()
	slog.Info("atendezap stopped")
}
