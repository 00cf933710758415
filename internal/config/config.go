package config

import (
	"sync"
)

// Config is the root configuration for the AtendeZap gateway.
// Loaded once at startup, treated as immutable by consumers; the
// watcher swaps whole values, it never mutates a live Config.
type Config struct {
	Agent      AgentConfig      `json:"agent"`
	Provider   ProviderConfig   `json:"provider"`
	Gateway    GatewayConfig    `json:"gateway"`
	Queue      QueueConfig      `json:"queue"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Knowledge  KnowledgeConfig  `json:"knowledge,omitempty"`
	Scheduling SchedulingConfig `json:"scheduling,omitempty"`
	Database   DatabaseConfig   `json:"database,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
	Tailscale  TailscaleConfig  `json:"tailscale,omitempty"`
	mu         sync.RWMutex
}

// AgentConfig controls the conversational agent.
type AgentConfig struct {
	Name              string  `json:"name"`        // assistant persona name shown to customers
	CompanyName       string  `json:"company_name"`
	SystemPrompt      string  `json:"system_prompt,omitempty"` // overrides the built-in persona prompt
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"max_tool_iterations"`
	TurnTimeoutSec    int     `json:"turn_timeout_sec"` // overall deadline for one turn
	HistoryLoad       int     `json:"history_load"`     // messages read from the store
	HistoryRender     int     `json:"history_render"`   // most recent messages rendered into the prompt
}

// ProviderConfig configures the OpenAI-compatible model endpoint.
// APIKey is NEVER read from config.json — only from env ATENDEZAP_OPENAI_API_KEY.
type ProviderConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"-"`
	Model             string `json:"model"`
	VisionModel       string `json:"vision_model"`
	TranscribeModel   string `json:"transcribe_model"`
	EmbeddingModel    string `json:"embedding_model"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	RateLimitRPM      int    `json:"rate_limit_rpm"` // 0 disables the limiter
}

// GatewayConfig configures the webhook HTTP server.
// WebhookToken comes from env ATENDEZAP_WEBHOOK_TOKEN only.
type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	WebhookToken    string `json:"-"`
	RateLimitRPM    int    `json:"rate_limit_rpm"` // per-sender webhook budget
	MaxMessageChars int    `json:"max_message_chars"` // fragment budget for outbound chunks
}

// QueueConfig controls per-sender message aggregation.
type QueueConfig struct {
	DebounceMs int `json:"debounce_ms"` // quiet period before a sender's buffer drains
	MaxPending int `json:"max_pending"` // fragments buffered per sender before forced drain
}

// WhatsAppConfig configures the Evolution API transport.
// APIKey from env ATENDEZAP_EVOLUTION_API_KEY only.
type WhatsAppConfig struct {
	BaseURL   string `json:"base_url"`
	Instance  string `json:"instance"`
	APIKey    string `json:"-"`
	Transport string `json:"transport,omitempty"`  // "http" (default) or "bridge"
	BridgeURL string `json:"bridge_url,omitempty"` // websocket bridge endpoint, transport=bridge
}

// KnowledgeConfig configures the qdrant-backed knowledge base.
type KnowledgeConfig struct {
	Enabled    bool   `json:"enabled"`
	QdrantHost string `json:"qdrant_host"`
	QdrantPort int    `json:"qdrant_port"`
	Collection string `json:"collection"`
	TopK       int    `json:"top_k"`
}

// SchedulingConfig configures appointment booking.
type SchedulingConfig struct {
	Timezone     string `json:"timezone"`
	DayStartHour int    `json:"day_start_hour"`
	DayEndHour   int    `json:"day_end_hour"`
	SlotMinutes  int    `json:"slot_minutes"`
	CalendarURL  string `json:"calendar_url,omitempty"` // external calendar service; empty = local store
}

// DatabaseConfig selects the persistence backend.
// PostgresDSN is NEVER read from config.json — only from env ATENDEZAP_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	StateDir    string `json:"state_dir,omitempty"` // sqlite location for standalone mode
}

// TelemetryConfig configures the optional OTLP trace exporter.
// Requires building with -tags otel.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// TailscaleConfig configures the optional tsnet webhook listener.
// Requires building with -tags tsnet. Auth key from env only.
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// IsManagedMode reports whether Postgres backs the stores.
// Without a DSN the gateway runs standalone on sqlite.
func (c *Config) IsManagedMode() bool {
	return c.Database.PostgresDSN != ""
}
