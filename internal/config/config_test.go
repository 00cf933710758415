package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.MaxToolIterations != 3 {
		t.Errorf("expected default max_tool_iterations 3, got %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Queue.DebounceMs != 8000 {
		t.Errorf("expected default debounce 8000ms, got %d", cfg.Queue.DebounceMs)
	}
	if cfg.Scheduling.Timezone != "America/Sao_Paulo" {
		t.Errorf("unexpected default timezone: %s", cfg.Scheduling.Timezone)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		// JSON5 comments are allowed
		agent: { name: "Ana", max_tool_iterations: 5 },
		queue: { debounce_ms: 3000 },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.Name != "Ana" {
		t.Errorf("expected agent name Ana, got %q", cfg.Agent.Name)
	}
	if cfg.Agent.MaxToolIterations != 5 {
		t.Errorf("expected 5 iterations, got %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Queue.DebounceMs != 3000 {
		t.Errorf("expected debounce 3000, got %d", cfg.Queue.DebounceMs)
	}
	// Untouched sections keep defaults.
	if cfg.Gateway.MaxMessageChars != 1000 {
		t.Errorf("expected default max_message_chars, got %d", cfg.Gateway.MaxMessageChars)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, `{ gateway: { port: 9000 } }`)
	t.Setenv("ATENDEZAP_PORT", "9999")
	t.Setenv("ATENDEZAP_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected env port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("expected API key from env, got %q", cfg.Provider.APIKey)
	}
}

func TestLoad_SecretsNeverFromFile(t *testing.T) {
	path := writeTempConfig(t, `{ provider: { api_key: "sk-from-file" } }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey == "sk-from-file" {
		t.Error("API key must not be readable from config.json")
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "sk-secret"
	cfg.Gateway.WebhookToken = "tok"
	cfg.WhatsApp.BaseURL = "https://evo.example.com"

	cp := cfg.MaskedCopy()
	if cp.Provider.APIKey != "***" {
		t.Errorf("expected masked API key, got %q", cp.Provider.APIKey)
	}
	if cp.Gateway.WebhookToken != "***" {
		t.Errorf("expected masked token, got %q", cp.Gateway.WebhookToken)
	}
	if cp.WhatsApp.BaseURL != "https://evo.example.com" {
		t.Errorf("non-secret field changed: %q", cp.WhatsApp.BaseURL)
	}
	// Empty secrets stay empty, not masked.
	if cp.Tailscale.AuthKey != "" {
		t.Errorf("empty secret should stay empty, got %q", cp.Tailscale.AuthKey)
	}
	// Original untouched.
	if cfg.Provider.APIKey != "sk-secret" {
		t.Error("MaskedCopy mutated the original")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/.atendezap"); got != home+"/.atendezap" {
		t.Errorf("unexpected expansion: %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
