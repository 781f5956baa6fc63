package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chat platforms the bot can post to.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Config holds all application configuration.
type Config struct {
	Platform string `yaml:"platform"`

	DiscordToken     string `yaml:"discord_token"`
	DiscordPublicKey string `yaml:"discord_public_key"`
	DiscordAppID     string `yaml:"discord_app_id"`
	DiscordGuildID   string `yaml:"discord_guild_id"`
	DiscordChannelID string `yaml:"discord_channel_id"`
	RegisterCommands bool   `yaml:"register_commands"`
	ListenAddr       string `yaml:"listen_addr"`
	// DeferResponses acknowledges a command at once and edits the reply when
	// the run finishes. Discord drops replies slower than 3 seconds, which a
	// real season check always is, so it defaults to true.
	DeferResponses *bool `yaml:"defer_responses"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	WikiAPIURL       string  `yaml:"wiki_api_url"`
	WikiPageTemplate string  `yaml:"wiki_page_template"`
	WikiUserAgent    string  `yaml:"wiki_user_agent"`
	WikiRateLimit    float64 `yaml:"wiki_rate_limit"`

	DefaultSeason    int `yaml:"default_season"`
	ResolveWorkers   int `yaml:"resolve_workers"`
	LeaseTTLSecs     int `yaml:"lease_ttl_secs"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs"`

	// Queens seeds the known contestant names per season at startup.
	Queens map[int][]string `yaml:"queens"`

	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
}

// Deferred reports whether Discord replies are deferred.
func (c *Config) Deferred() bool {
	return c.DeferResponses == nil || *c.DeferResponses
}

// listenAddrRegex accepts "host:port" and ":port".
var listenAddrRegex = regexp.MustCompile(`^[^:\s]*:[0-9]{1,5}$`)

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("RUNWAY_BOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.Platform == "" {
		cfg.Platform = PlatformDiscord
	}
	if cfg.DeferResponses == nil {
		deferred := true
		cfg.DeferResponses = &deferred
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.WikiAPIURL == "" {
		cfg.WikiAPIURL = "https://rupaulsdragrace.fandom.com/api.php"
	}
	if cfg.WikiPageTemplate == "" {
		cfg.WikiPageTemplate = "RuPaul's Drag Race (Season {season})"
	}
	if cfg.WikiUserAgent == "" {
		cfg.WikiUserAgent = "runway-bot/1.0"
	}
	if cfg.WikiRateLimit == 0 {
		cfg.WikiRateLimit = 10
	}
	if cfg.DefaultSeason == 0 {
		cfg.DefaultSeason = 17
	}
	if cfg.ResolveWorkers == 0 {
		cfg.ResolveWorkers = 8
	}
	if cfg.LeaseTTLSecs == 0 {
		cfg.LeaseTTLSecs = 600
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 10
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./runway-bot.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if dbPath := os.Getenv("RUNWAY_BOT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.DiscordToken = token
	}
	if key := os.Getenv("DISCORD_PUBLIC_KEY"); key != "" {
		cfg.DiscordPublicKey = key
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
}

func validate(cfg *Config) error {
	switch cfg.Platform {
	case PlatformDiscord:
		if cfg.DiscordToken == "" {
			return fmt.Errorf("discord_token is required")
		}
		if cfg.DiscordPublicKey == "" {
			return fmt.Errorf("discord_public_key is required")
		}
		if cfg.DiscordChannelID == "" {
			return fmt.Errorf("discord_channel_id is required")
		}
		if (cfg.RegisterCommands || cfg.Deferred()) && cfg.DiscordAppID == "" {
			return fmt.Errorf("discord_app_id is required to register commands or defer responses")
		}
		if !listenAddrRegex.MatchString(cfg.ListenAddr) {
			return fmt.Errorf("listen_addr must be host:port, got %q", cfg.ListenAddr)
		}
	case PlatformTelegram:
		if cfg.TelegramToken == "" {
			return fmt.Errorf("telegram_token is required")
		}
		if cfg.TelegramChatID == 0 {
			return fmt.Errorf("telegram_chat_id is required")
		}
	default:
		return fmt.Errorf("platform must be %q or %q, got %q", PlatformDiscord, PlatformTelegram, cfg.Platform)
	}

	if !strings.Contains(cfg.WikiPageTemplate, "{season}") {
		return fmt.Errorf("wiki_page_template must contain {season}, got %q", cfg.WikiPageTemplate)
	}
	if cfg.DefaultSeason < 1 {
		return fmt.Errorf("default_season must be positive, got %d", cfg.DefaultSeason)
	}
	if cfg.ResolveWorkers < 1 || cfg.ResolveWorkers > 64 {
		return fmt.Errorf("resolve_workers must be between 1 and 64, got %d", cfg.ResolveWorkers)
	}
	if cfg.LeaseTTLSecs < 0 {
		return fmt.Errorf("lease_ttl_secs must not be negative, got %d", cfg.LeaseTTLSecs)
	}
	for season := range cfg.Queens {
		if season < 1 {
			return fmt.Errorf("queens: season must be positive, got %d", season)
		}
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}
	return nil
}
