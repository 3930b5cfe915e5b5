package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stellarlinkco/cordkit/internal/command"
)

const (
	DefaultAPIBaseURL      = "https://discord.com/api"
	DefaultAPIVersion      = 10
	DefaultAPITimeout      = "15s"
	DefaultGatewayIntents  = 1<<0 | 1<<9 // guilds, guild messages
	DefaultBufSize         = 100
	DefaultCacheBackend    = CacheBackendMemory
	DefaultCacheTTL        = "30s"
	DefaultCachePurge      = "0 */10 * * * *"
	DefaultCommandsDirName = "commands"
	DefaultLogLevel        = "info"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
)

type Config struct {
	LogLevel    string            `json:"logLevel,omitempty"`
	Application ApplicationConfig `json:"application"`
	API         APIConfig         `json:"api"`
	Gateway     GatewayConfig     `json:"gateway"`
	Commands    CommandsConfig    `json:"commands"`
	Cache       CacheConfig       `json:"cache"`
	Channels    ChannelsConfig    `json:"channels"`
}

type ApplicationConfig struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	// GuildID scopes command registration to one guild when set.
	GuildID string `json:"guildId,omitempty"`
}

type APIConfig struct {
	BaseURL string `json:"baseUrl,omitempty"`
	Version int    `json:"version,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type GatewayConfig struct {
	// URL overrides the gateway address returned by the REST API.
	URL     string `json:"url,omitempty"`
	Intents int    `json:"intents"`
}

type CommandsConfig struct {
	// Path is a declaration file or a directory of declaration files.
	Path         string         `json:"path"`
	SyncOnStart  bool           `json:"syncOnStart"`
	SyncSchedule string         `json:"syncSchedule,omitempty"`
	Limits       command.Limits `json:"limits"`
}

type CacheConfig struct {
	Enabled       bool              `json:"enabled"`
	Backend       string            `json:"backend,omitempty"`
	DBPath        string            `json:"dbPath,omitempty"`
	DefaultTTL    string            `json:"defaultTtl,omitempty"`
	Routes        map[string]string `json:"routes,omitempty"`
	PurgeSchedule string            `json:"purgeSchedule,omitempty"`
}

type ChannelsConfig struct {
	Platform PlatformConfig `json:"platform"`
	Telegram TelegramConfig `json:"telegram"`
}

type PlatformConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
	// MirrorCommands publishes the compiled command tree as the bot's menu.
	MirrorCommands bool `json:"mirrorCommands"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Version: DefaultAPIVersion,
			Timeout: DefaultAPITimeout,
		},
		Gateway: GatewayConfig{
			Intents: DefaultGatewayIntents,
		},
		Commands: CommandsConfig{
			Path:   filepath.Join(ConfigDir(), DefaultCommandsDirName),
			Limits: command.DefaultLimits(),
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       DefaultCacheBackend,
			DefaultTTL:    DefaultCacheTTL,
			PurgeSchedule: DefaultCachePurge,
		},
		Channels: ChannelsConfig{
			Platform: PlatformConfig{Enabled: true},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".cordkit")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("CORDKIT_TOKEN"); token != "" {
		cfg.Application.Token = token
	}
	if id := os.Getenv("CORDKIT_APPLICATION_ID"); id != "" {
		cfg.Application.ID = id
	}
	if guild := os.Getenv("CORDKIT_GUILD_ID"); guild != "" {
		cfg.Application.GuildID = guild
	}
	if url := os.Getenv("CORDKIT_API_BASE_URL"); url != "" {
		cfg.API.BaseURL = url
	}
	if url := os.Getenv("CORDKIT_GATEWAY_URL"); url != "" {
		cfg.Gateway.URL = url
	}
	if token := os.Getenv("CORDKIT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if path := os.Getenv("CORDKIT_COMMANDS_PATH"); path != "" {
		cfg.Commands.Path = path
	}
	if level := os.Getenv("CORDKIT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if backend := os.Getenv("CORDKIT_CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBaseURL
	}
	if cfg.API.Version <= 0 {
		cfg.API.Version = DefaultAPIVersion
	}
	if cfg.API.Timeout == "" {
		cfg.API.Timeout = DefaultAPITimeout
	}
	if cfg.Commands.Path == "" {
		cfg.Commands.Path = DefaultConfig().Commands.Path
	}
	cfg.Commands.Limits = cfg.Commands.Limits.WithDefaults()
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.DefaultTTL == "" {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Cache.PurgeSchedule == "" {
		cfg.Cache.PurgeSchedule = DefaultCachePurge
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

// Validate reports settings that make the platform unreachable.
func (c *Config) Validate() error {
	if c.Application.Token == "" {
		return fmt.Errorf("application token not set. Run 'cordkit init' or set CORDKIT_TOKEN")
	}
	if c.Application.ID == "" {
		return fmt.Errorf("application id not set. Set application.id or CORDKIT_APPLICATION_ID")
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendSQLite:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
