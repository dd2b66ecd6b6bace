// Package config handles loading and validating the voxgate configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the voxgate daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Synth    SynthConfig    `mapstructure:"synth"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Usage    UsageConfig    `mapstructure:"usage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the API and health server settings.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	HealthPort int `mapstructure:"health_port"`
}

// LimitsConfig controls the global synthesis budget and request validation.
type LimitsConfig struct {
	RequestLimit             int    `mapstructure:"request_limit"`
	Window                   string `mapstructure:"window"` // "minute" or "day"
	MaxTextLength            int    `mapstructure:"max_text_length"`
	RequireAuth              bool   `mapstructure:"require_auth"`
	RequireEmailVerification bool   `mapstructure:"require_email_verification"`
}

// QueueConfig controls queueing behavior when the budget is exhausted.
type QueueConfig struct {
	Policy        string        `mapstructure:"policy"` // "reject" or "hold"
	HoldTimeout   time.Duration `mapstructure:"hold_timeout"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// SynthConfig selects and configures the speech synthesis backend.
type SynthConfig struct {
	Backend string       `mapstructure:"backend"` // "openai", "piper", or "mock"
	OpenAI  OpenAIConfig `mapstructure:"openai"`
	Piper   PiperConfig  `mapstructure:"piper"`
}

// OpenAIConfig holds OpenAI speech API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
type PiperConfig struct {
	Endpoint string            `mapstructure:"endpoint"` // Wyoming TCP endpoint (host:port)
	Voices   map[string]string `mapstructure:"voices"`   // public voice name -> Piper voice model name
}

// PostgresConfig holds the connection settings for the shared store.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds optional Redis settings for usage-record deduplication.
// Leaving Addr empty disables deduplication.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// UsageConfig controls the usage recorder.
type UsageConfig struct {
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voxgate.yaml, ./configs/voxgate.yaml, /etc/voxgate/voxgate.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("limits.request_limit", 5)
	v.SetDefault("limits.window", "minute")
	v.SetDefault("limits.max_text_length", 4000)
	v.SetDefault("limits.require_auth", false)
	v.SetDefault("limits.require_email_verification", true)
	v.SetDefault("queue.policy", "reject")
	v.SetDefault("queue.hold_timeout", 30*time.Second)
	v.SetDefault("queue.drain_interval", 2*time.Second)
	v.SetDefault("synth.backend", "openai")
	v.SetDefault("synth.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("synth.openai.model", "tts-1")
	v.SetDefault("synth.piper.endpoint", "localhost:10200")
	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("usage.dedup_window", 5*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voxgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voxgate")
	}

	// Environment variables: VOXGATE_SERVER_PORT, VOXGATE_LIMITS_REQUEST_LIMIT, etc.
	v.SetEnvPrefix("VOXGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional; env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.Synth.OpenAI.APIKey = resolveEnvRef(cfg.Synth.OpenAI.APIKey)
	cfg.Postgres.URL = resolveEnvRef(cfg.Postgres.URL)
	cfg.Redis.Password = resolveEnvRef(cfg.Redis.Password)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects option values that would otherwise fail at first use.
func validate(cfg *Config) error {
	switch cfg.Limits.Window {
	case "minute", "day":
	default:
		return fmt.Errorf("limits.window must be \"minute\" or \"day\", got %q", cfg.Limits.Window)
	}
	switch cfg.Queue.Policy {
	case "reject", "hold":
	default:
		return fmt.Errorf("queue.policy must be \"reject\" or \"hold\", got %q", cfg.Queue.Policy)
	}
	switch cfg.Synth.Backend {
	case "openai", "piper", "mock":
	default:
		return fmt.Errorf("synth.backend must be \"openai\", \"piper\", or \"mock\", got %q", cfg.Synth.Backend)
	}
	if cfg.Limits.RequestLimit < 0 {
		return fmt.Errorf("limits.request_limit must be non-negative, got %d", cfg.Limits.RequestLimit)
	}
	if cfg.Limits.MaxTextLength <= 0 {
		return fmt.Errorf("limits.max_text_length must be positive, got %d", cfg.Limits.MaxTextLength)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
