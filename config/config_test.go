package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalDiscord = `
discord_token: "test-token"
discord_public_key: "abcdef"
discord_channel_id: "123"
discord_app_id: "app-1"
`

// writeConfig writes content to a temp config file and clears environment
// overrides so the host environment cannot leak into the test.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	for _, key := range []string{"RUNWAY_BOT_DB", "DISCORD_TOKEN", "DISCORD_PUBLIC_KEY", "TELEGRAM_TOKEN"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalDiscord))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Platform != PlatformDiscord {
		t.Errorf("Platform = %q, want %q", cfg.Platform, PlatformDiscord)
	}
	if !cfg.Deferred() {
		t.Error("Deferred() = false, want true by default")
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.WikiAPIURL != "https://rupaulsdragrace.fandom.com/api.php" {
		t.Errorf("WikiAPIURL = %q", cfg.WikiAPIURL)
	}
	if cfg.WikiPageTemplate != "RuPaul's Drag Race (Season {season})" {
		t.Errorf("WikiPageTemplate = %q", cfg.WikiPageTemplate)
	}
	if cfg.WikiRateLimit != 10 {
		t.Errorf("WikiRateLimit = %f, want %f", cfg.WikiRateLimit, 10.0)
	}
	if cfg.DefaultSeason != 17 {
		t.Errorf("DefaultSeason = %d, want %d", cfg.DefaultSeason, 17)
	}
	if cfg.ResolveWorkers != 8 {
		t.Errorf("ResolveWorkers = %d, want %d", cfg.ResolveWorkers, 8)
	}
	if cfg.LeaseTTLSecs != 600 {
		t.Errorf("LeaseTTLSecs = %d, want %d", cfg.LeaseTTLSecs, 600)
	}
	if cfg.FetchTimeoutSecs != 10 {
		t.Errorf("FetchTimeoutSecs = %d, want %d", cfg.FetchTimeoutSecs, 10)
	}
	if cfg.DBPath != "./runway-bot.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "./runway-bot.db")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadOverrideDefaults(t *testing.T) {
	content := minimalDiscord + `
discord_guild_id: "guild-1"
register_commands: true
defer_responses: false
listen_addr: "127.0.0.1:9000"
wiki_api_url: "http://wiki.local/api.php"
wiki_page_template: "Season {season}"
wiki_rate_limit: 2.5
default_season: 16
resolve_workers: 4
lease_ttl_secs: 60
fetch_timeout_secs: 30
db_path: "/data/bot.db"
log_level: "debug"
queens:
  17:
    - "Lexi Love"
    - "Onya Nurve"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DiscordAppID != "app-1" || cfg.DiscordGuildID != "guild-1" {
		t.Errorf("Discord ids = %q/%q", cfg.DiscordAppID, cfg.DiscordGuildID)
	}
	if !cfg.RegisterCommands || cfg.Deferred() {
		t.Errorf("RegisterCommands/Deferred = %v/%v, want true/false", cfg.RegisterCommands, cfg.Deferred())
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.WikiAPIURL != "http://wiki.local/api.php" {
		t.Errorf("WikiAPIURL = %q", cfg.WikiAPIURL)
	}
	if cfg.WikiPageTemplate != "Season {season}" {
		t.Errorf("WikiPageTemplate = %q", cfg.WikiPageTemplate)
	}
	if cfg.WikiRateLimit != 2.5 {
		t.Errorf("WikiRateLimit = %f, want %f", cfg.WikiRateLimit, 2.5)
	}
	if cfg.DefaultSeason != 16 {
		t.Errorf("DefaultSeason = %d, want %d", cfg.DefaultSeason, 16)
	}
	if cfg.ResolveWorkers != 4 {
		t.Errorf("ResolveWorkers = %d, want %d", cfg.ResolveWorkers, 4)
	}
	if cfg.LeaseTTLSecs != 60 {
		t.Errorf("LeaseTTLSecs = %d, want %d", cfg.LeaseTTLSecs, 60)
	}
	if cfg.FetchTimeoutSecs != 30 {
		t.Errorf("FetchTimeoutSecs = %d, want %d", cfg.FetchTimeoutSecs, 30)
	}
	if cfg.DBPath != "/data/bot.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if got := cfg.Queens[17]; len(got) != 2 || got[0] != "Lexi Love" || got[1] != "Onya Nurve" {
		t.Errorf("Queens[17] = %v", got)
	}
}

func TestLoadSyncResponsesWithoutAppID(t *testing.T) {
	content := `
discord_token: "t"
discord_public_key: "abcdef"
discord_channel_id: "123"
defer_responses: false
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deferred() {
		t.Error("Deferred() = true, want false when disabled")
	}
}

func TestLoadTelegram(t *testing.T) {
	content := `
platform: "telegram"
telegram_token: "tg-token"
telegram_chat_id: -100123
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TelegramChatID != -100123 {
		t.Errorf("TelegramChatID = %d, want %d", cfg.TelegramChatID, -100123)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing discord token", `
discord_public_key: "abcdef"
discord_channel_id: "123"
`},
		{"missing public key", `
discord_token: "t"
discord_channel_id: "123"
`},
		{"missing channel", `
discord_token: "t"
discord_public_key: "abcdef"
`},
		{"register without app id", `
discord_token: "t"
discord_public_key: "abcdef"
discord_channel_id: "123"
defer_responses: false
register_commands: true
`},
		{"default deferral without app id", `
discord_token: "t"
discord_public_key: "abcdef"
discord_channel_id: "123"
`},
		{"bad listen addr", minimalDiscord + `listen_addr: "8080"`},
		{"missing telegram token", `
platform: "telegram"
telegram_chat_id: -100123
`},
		{"missing telegram chat", `
platform: "telegram"
telegram_token: "tg"
`},
		{"unknown platform", `platform: "irc"`},
		{"template without season", minimalDiscord + `wiki_page_template: "Gallery"`},
		{"negative default season", minimalDiscord + `default_season: -1`},
		{"too many workers", minimalDiscord + `resolve_workers: 500`},
		{"negative lease ttl", minimalDiscord + `lease_ttl_secs: -5`},
		{"bad log level", minimalDiscord + `log_level: "loud"`},
		{"bad queens season", minimalDiscord + `
queens:
  0: ["Someone"]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content:`))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvironmentVariableOverride(t *testing.T) {
	configPath := writeConfig(t, `
db_path: "/original/path.db"
discord_channel_id: "123"
discord_app_id: "app-1"
`)

	t.Setenv("RUNWAY_BOT_DB", "/override/path.db")
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("DISCORD_PUBLIC_KEY", "env-key")
	t.Setenv("TELEGRAM_TOKEN", "env-tg")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/override/path.db" {
		t.Errorf("DBPath = %q, want %q (from env)", cfg.DBPath, "/override/path.db")
	}
	if cfg.DiscordToken != "env-token" {
		t.Errorf("DiscordToken = %q, want %q (from env)", cfg.DiscordToken, "env-token")
	}
	if cfg.DiscordPublicKey != "env-key" {
		t.Errorf("DiscordPublicKey = %q, want %q (from env)", cfg.DiscordPublicKey, "env-key")
	}
	if cfg.TelegramToken != "env-tg" {
		t.Errorf("TelegramToken = %q, want %q (from env)", cfg.TelegramToken, "env-tg")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("RUNWAY_BOT_CONFIG", "")
	if path := GetConfigPath(); path != "./config.yaml" {
		t.Errorf("GetConfigPath() = %q, want %q", path, "./config.yaml")
	}

	t.Setenv("RUNWAY_BOT_CONFIG", "/custom/config.yaml")
	if path := GetConfigPath(); path != "/custom/config.yaml" {
		t.Errorf("GetConfigPath() = %q, want %q", path, "/custom/config.yaml")
	}
}
