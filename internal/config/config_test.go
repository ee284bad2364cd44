package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
	if _, err := LoadForTool(); err != nil {
		t.Fatalf("tool config should not need a token: %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
discord_token: from-file
command_prefix: "?"
database_driver: PostgreSQL
database_path: postgres://localhost/giveaways
giveaway:
  entry_emoji: "🎁"
  max_winners: 5
  max_duration_hours: 48
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("EMBED_COLOR_ACTIVE", "0x00FF00")
	t.Setenv("HEALTH_ENABLED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.DiscordToken)
	}
	if cfg.CommandPrefix != "?" {
		t.Fatalf("expected prefix ?, got %q", cfg.CommandPrefix)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("expected normalized postgres driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.Giveaway.EntryEmoji != "🎁" || cfg.Giveaway.MaxWinners != 5 {
		t.Fatalf("unexpected giveaway config %+v", cfg.Giveaway)
	}
	if cfg.Giveaway.MaxDuration() != 48*time.Hour {
		t.Fatalf("expected 48h max duration, got %v", cfg.Giveaway.MaxDuration())
	}
	if cfg.Giveaway.EmbedColors.Active != 0x00FF00 {
		t.Fatalf("expected hex color from env, got %#x", cfg.Giveaway.EmbedColors.Active)
	}
	if !cfg.Health.Enabled {
		t.Fatalf("expected health enabled")
	}
	if cfg.Cooldown.Commands != DefaultConfig().Cooldown.Commands {
		t.Fatalf("unset values should keep defaults")
	}
}

func TestCompletionTimeoutFallback(t *testing.T) {
	g := GiveawayConfig{}
	if g.CompletionTimeout() != 30*time.Second {
		t.Fatalf("expected 30s fallback, got %v", g.CompletionTimeout())
	}
}

func TestBuildLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	logger, err := BuildLogger("debug", LogFileConfig{Path: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in file")
	}
}
