package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:              "Carol",
			CompanyName:       "Centro-Oeste Drywall",
			MaxTokens:         1024,
			Temperature:       0.7,
			MaxToolIterations: 3,
			TurnTimeoutSec:    90,
			HistoryLoad:       10,
			HistoryRender:     6,
		},
		Provider: ProviderConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			VisionModel:       "gpt-4o",
			TranscribeModel:   "whisper-1",
			EmbeddingModel:    "text-embedding-3-small",
			RequestTimeoutSec: 60,
		},
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18890,
			RateLimitRPM:    30,
			MaxMessageChars: 1000,
		},
		Queue: QueueConfig{
			DebounceMs: 8000,
			MaxPending: 20,
		},
		WhatsApp: WhatsAppConfig{
			Transport: "http",
		},
		Knowledge: KnowledgeConfig{
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "conhecimento",
			TopK:       3,
		},
		Scheduling: SchedulingConfig{
			Timezone:     "America/Sao_Paulo",
			DayStartHour: 8,
			DayEndHour:   18,
			SlotMinutes:  60,
		},
		Database: DatabaseConfig{
			StateDir: "~/.atendezap",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. Secrets live here only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	// Secrets (never persisted to config.json)
	envStr("ATENDEZAP_OPENAI_API_KEY", &c.Provider.APIKey)
	envStr("ATENDEZAP_EVOLUTION_API_KEY", &c.WhatsApp.APIKey)
	envStr("ATENDEZAP_WEBHOOK_TOKEN", &c.Gateway.WebhookToken)
	envStr("ATENDEZAP_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ATENDEZAP_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)

	// Provider
	envStr("ATENDEZAP_PROVIDER_BASE_URL", &c.Provider.BaseURL)
	envStr("ATENDEZAP_MODEL", &c.Provider.Model)

	// Gateway
	envStr("ATENDEZAP_HOST", &c.Gateway.Host)
	envInt("ATENDEZAP_PORT", &c.Gateway.Port)

	// WhatsApp
	envStr("ATENDEZAP_EVOLUTION_URL", &c.WhatsApp.BaseURL)
	envStr("ATENDEZAP_EVOLUTION_INSTANCE", &c.WhatsApp.Instance)

	// Queue
	envInt("ATENDEZAP_DEBOUNCE_MS", &c.Queue.DebounceMs)

	// Database
	envStr("ATENDEZAP_STATE_DIR", &c.Database.StateDir)

	// Telemetry
	envStr("ATENDEZAP_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("ATENDEZAP_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("ATENDEZAP_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("ATENDEZAP_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ATENDEZAP_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Tailscale (tsnet)
	envStr("ATENDEZAP_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("ATENDEZAP_TSNET_DIR", &c.Tailscale.StateDir)
}

// Save writes the config to a JSON file. Secrets are excluded by
// their `json:"-"` tags, so nothing sensitive reaches disk.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StatePath returns the expanded state directory path.
func (c *Config) StatePath() string {
	return ExpandHome(c.Database.StateDir)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with secret fields masked.
// Used by doctor output so secrets never hit the terminal.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	// json:"-" fields do not survive the round-trip; copy then mask.
	cp.Provider.APIKey = c.Provider.APIKey
	cp.WhatsApp.APIKey = c.WhatsApp.APIKey
	cp.Gateway.WebhookToken = c.Gateway.WebhookToken
	cp.Database.PostgresDSN = c.Database.PostgresDSN
	cp.Tailscale.AuthKey = c.Tailscale.AuthKey

	maskNonEmpty(&cp.Provider.APIKey)
	maskNonEmpty(&cp.WhatsApp.APIKey)
	maskNonEmpty(&cp.Gateway.WebhookToken)
	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.Tailscale.AuthKey)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
