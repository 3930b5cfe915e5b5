package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellarlinkco/cordkit/internal/command"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CORDKIT_TOKEN", "CORDKIT_APPLICATION_ID", "CORDKIT_GUILD_ID",
		"CORDKIT_API_BASE_URL", "CORDKIT_GATEWAY_URL", "CORDKIT_TELEGRAM_TOKEN",
		"CORDKIT_COMMANDS_PATH", "CORDKIT_LOG_LEVEL", "CORDKIT_CACHE_BACKEND",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("baseUrl = %q, want %q", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.API.Version != DefaultAPIVersion {
		t.Errorf("version = %d, want %d", cfg.API.Version, DefaultAPIVersion)
	}
	if cfg.Gateway.Intents != DefaultGatewayIntents {
		t.Errorf("intents = %d, want %d", cfg.Gateway.Intents, DefaultGatewayIntents)
	}
	if cfg.Commands.Limits != command.DefaultLimits() {
		t.Errorf("limits = %+v, want defaults", cfg.Commands.Limits)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("cache backend = %q, want %q", cfg.Cache.Backend, CacheBackendMemory)
	}
	if !cfg.Channels.Platform.Enabled {
		t.Error("platform channel should be enabled by default")
	}
	if !strings.HasSuffix(cfg.Commands.Path, DefaultCommandsDirName) {
		t.Errorf("commands path = %q, want suffix %q", cfg.Commands.Path, DefaultCommandsDirName)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("expected default base url %q, got %q", DefaultAPIBaseURL, cfg.API.BaseURL)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("logLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".cordkit")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	testCfg := map[string]any{
		"application": map[string]any{
			"id":      "1234",
			"token":   "file-token",
			"guildId": "42",
		},
		"commands": map[string]any{
			"path":   "/srv/commands.yaml",
			"limits": map[string]any{"maxParameters": 10},
		},
		"cache": map[string]any{
			"enabled": true,
			"backend": "sqlite",
			"routes":  map[string]any{"GET /gateway/bot": "1h"},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Application.ID != "1234" {
		t.Errorf("id = %q, want 1234", cfg.Application.ID)
	}
	if cfg.Application.Token != "file-token" {
		t.Errorf("token = %q, want file-token", cfg.Application.Token)
	}
	if cfg.Application.GuildID != "42" {
		t.Errorf("guildId = %q, want 42", cfg.Application.GuildID)
	}
	if cfg.Commands.Path != "/srv/commands.yaml" {
		t.Errorf("commands path = %q, want /srv/commands.yaml", cfg.Commands.Path)
	}
	if cfg.Commands.Limits.MaxParameters != 10 {
		t.Errorf("maxParameters = %d, want 10", cfg.Commands.Limits.MaxParameters)
	}
	if cfg.Commands.Limits.MaxTopLevel != command.DefaultMaxTopLevel {
		t.Errorf("maxTopLevel = %d, want %d", cfg.Commands.Limits.MaxTopLevel, command.DefaultMaxTopLevel)
	}
	if cfg.Cache.Backend != CacheBackendSQLite {
		t.Errorf("cache backend = %q, want sqlite", cfg.Cache.Backend)
	}
	if cfg.Cache.Routes["GET /gateway/bot"] != "1h" {
		t.Errorf("routes = %v, want gateway route", cfg.Cache.Routes)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".cordkit")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{not json"), 0644)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	t.Setenv("CORDKIT_TOKEN", "env-token")
	t.Setenv("CORDKIT_APPLICATION_ID", "999")
	t.Setenv("CORDKIT_GUILD_ID", "7")
	t.Setenv("CORDKIT_API_BASE_URL", "http://localhost:8080/api")
	t.Setenv("CORDKIT_GATEWAY_URL", "ws://localhost:8081")
	t.Setenv("CORDKIT_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("CORDKIT_COMMANDS_PATH", "/tmp/cmds")
	t.Setenv("CORDKIT_LOG_LEVEL", "debug")
	t.Setenv("CORDKIT_CACHE_BACKEND", "sqlite")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"token", cfg.Application.Token, "env-token"},
		{"id", cfg.Application.ID, "999"},
		{"guildId", cfg.Application.GuildID, "7"},
		{"baseUrl", cfg.API.BaseURL, "http://localhost:8080/api"},
		{"gateway url", cfg.Gateway.URL, "ws://localhost:8081"},
		{"telegram token", cfg.Channels.Telegram.Token, "tg-token"},
		{"commands path", cfg.Commands.Path, "/tmp/cmds"},
		{"logLevel", cfg.LogLevel, "debug"},
		{"cache backend", cfg.Cache.Backend, "sqlite"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without token")
	}

	cfg.Application.Token = "t"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without application id")
	}

	cfg.Application.ID = "1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}

	cfg.Cache.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown cache backend")
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Application.Token = "test-token"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".cordkit", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Application.Token != "test-token" {
		t.Errorf("saved token = %q, want test-token", loaded.Application.Token)
	}
	if loaded.Commands.Limits != command.DefaultLimits() {
		t.Errorf("saved limits = %+v, want defaults", loaded.Commands.Limits)
	}
}
