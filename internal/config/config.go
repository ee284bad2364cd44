package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken       string         `yaml:"discord_token"`
	CommandPrefix      string         `yaml:"command_prefix"`
	DatabaseDriver     string         `yaml:"database_driver"`
	DatabasePath       string         `yaml:"database_path"`
	LogLevel           string         `yaml:"log_level"`
	LogFile            LogFileConfig  `yaml:"log_file"`
	AuditRetentionDays int            `yaml:"audit_retention_days"`
	AuditLogChannel    string         `yaml:"audit_log_channel"`
	Health             HealthConfig   `yaml:"health"`
	Giveaway           GiveawayConfig `yaml:"giveaway"`
	Cooldown           CooldownConfig `yaml:"cooldown"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type GiveawayConfig struct {
	EntryEmoji               string      `yaml:"entry_emoji"`
	ManagerRoleID            string      `yaml:"manager_role_id"`
	MaxWinners               int         `yaml:"max_winners"`
	MaxDurationHours         int         `yaml:"max_duration_hours"`
	CompletionTimeoutSeconds int         `yaml:"completion_timeout_seconds"`
	EmbedColors              EmbedColors `yaml:"embed_colors"`
}

type CooldownConfig struct {
	Commands      int `yaml:"commands"`
	WindowSeconds int `yaml:"window_seconds"`
}

type EmbedColors struct {
	Active int `yaml:"active"`
	Ended  int `yaml:"ended"`
	Error  int `yaml:"error"`
}

func (g GiveawayConfig) MaxDuration() time.Duration {
	return time.Duration(g.MaxDurationHours) * time.Hour
}

func (g GiveawayConfig) CompletionTimeout() time.Duration {
	if g.CompletionTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.CompletionTimeoutSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		CommandPrefix:      "!",
		DatabaseDriver:     "sqlite",
		DatabasePath:       "/data/giveaways.db",
		LogLevel:           "info",
		AuditRetentionDays: 30,
		Health:             HealthConfig{Enabled: false, Addr: ":8080"},
		LogFile:            LogFileConfig{MaxSizeMB: 25, MaxBackups: 5, MaxAgeDays: 30},
		Giveaway: GiveawayConfig{
			EntryEmoji:               "🎉",
			MaxWinners:               20,
			MaxDurationHours:         24 * 30,
			CompletionTimeoutSeconds: 30,
			EmbedColors: EmbedColors{
				Active: 0x5865F2,
				Ended:  0x2F3136,
				Error:  0xEF4444,
			},
		},
		Cooldown: CooldownConfig{Commands: 5, WindowSeconds: 10},
	}
}

// Load builds the bot configuration and requires a Discord token.
func Load() (Config, error) {
	cfg, err := LoadForTool()
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

// LoadForTool builds the configuration without requiring a Discord token, for
// offline tooling that only touches the database.
func LoadForTool() (Config, error) {
	cfg := DefaultConfig()

	// a missing .env is normal outside development
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.CommandPrefix = envString("COMMAND_PREFIX", cfg.CommandPrefix)
	cfg.DatabaseDriver = envString("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile.Path = envString("LOG_FILE", cfg.LogFile.Path)
	cfg.AuditRetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays)
	cfg.AuditLogChannel = envString("AUDIT_LOG_CHANNEL", cfg.AuditLogChannel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Giveaway.EntryEmoji = envString("GIVEAWAY_ENTRY_EMOJI", cfg.Giveaway.EntryEmoji)
	cfg.Giveaway.ManagerRoleID = envString("GIVEAWAY_MANAGER_ROLE_ID", cfg.Giveaway.ManagerRoleID)
	cfg.Giveaway.MaxWinners = envInt("GIVEAWAY_MAX_WINNERS", cfg.Giveaway.MaxWinners)
	cfg.Giveaway.MaxDurationHours = envInt("GIVEAWAY_MAX_DURATION_HOURS", cfg.Giveaway.MaxDurationHours)
	cfg.Giveaway.CompletionTimeoutSeconds = envInt("GIVEAWAY_COMPLETION_TIMEOUT_SECONDS", cfg.Giveaway.CompletionTimeoutSeconds)
	cfg.Giveaway.EmbedColors.Active = envInt("EMBED_COLOR_ACTIVE", cfg.Giveaway.EmbedColors.Active)
	cfg.Giveaway.EmbedColors.Ended = envInt("EMBED_COLOR_ENDED", cfg.Giveaway.EmbedColors.Ended)
	cfg.Giveaway.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Giveaway.EmbedColors.Error)
	cfg.Cooldown.Commands = envInt("COOLDOWN_COMMANDS", cfg.Cooldown.Commands)
	cfg.Cooldown.WindowSeconds = envInt("COOLDOWN_WINDOW_SECONDS", cfg.Cooldown.WindowSeconds)
}

func normalize(cfg *Config) {
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case "postgres", "postgresql", "pgx":
		cfg.DatabaseDriver = "postgres"
	default:
		cfg.DatabaseDriver = "sqlite"
	}
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		cfg.CommandPrefix = "!"
	}
	if cfg.Giveaway.EntryEmoji == "" {
		cfg.Giveaway.EntryEmoji = "🎉"
	}
	if cfg.Giveaway.MaxWinners <= 0 {
		cfg.Giveaway.MaxWinners = 20
	}
}

// BuildLogger returns a JSON zap logger on stdout, teed into a rotating file
// when file.Path is set.
func BuildLogger(level string, file LogFileConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if file.Path == "" {
		return logger, nil
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), writer, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 0, 64); err == nil {
			return int(parsed)
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
