// Package config loads memorylane settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration for memorylane.
type Config struct {
	Slack      SlackConfig      `koanf:"slack" yaml:"slack"`
	Replicate  ReplicateConfig  `koanf:"replicate" yaml:"replicate"`
	Generation GenerationConfig `koanf:"generation" yaml:"generation"`
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
	History    HistoryConfig    `koanf:"history" yaml:"history"`
	Metrics    MetricsConfig    `koanf:"metrics" yaml:"metrics"`
	AMQP       AMQPConfig       `koanf:"amqp" yaml:"amqp"`
	Tracing    TracingConfig    `koanf:"tracing" yaml:"tracing"`
}

type SlackConfig struct {
	BotToken      string `koanf:"bot_token" yaml:"bot_token"`
	SigningSecret string `koanf:"signing_secret" yaml:"signing_secret"`
	APIURL        string `koanf:"api_url" yaml:"api_url,omitempty"` // override for tests and proxies
}

type ReplicateConfig struct {
	APIToken    string `koanf:"api_token" yaml:"api_token"`
	APIBase     string `koanf:"api_base" yaml:"api_base"`
	Model       string `koanf:"model" yaml:"model"`
	LoraWeights string `koanf:"lora_weights" yaml:"lora_weights,omitempty"`
}

type GenerationConfig struct {
	TriggerWord string `koanf:"trigger_word" yaml:"trigger_word"`
	DefaultAge  string `koanf:"default_age" yaml:"default_age"`
}

type ServerConfig struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"` // debug | info | warn | error
}

type HistoryConfig struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	DBPath        string `koanf:"db_path" yaml:"db_path"`
	RetentionDays int    `koanf:"retention_days" yaml:"retention_days"` // 0 keeps everything
}

type MetricsConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`
}

type AMQPConfig struct {
	URL      string `koanf:"url" yaml:"url,omitempty"` // notifier disabled when empty
	Exchange string `koanf:"exchange" yaml:"exchange"`
}

// TracingConfig enables OpenTelemetry request spans exported to stdout.
type TracingConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// envKeys maps supported environment variables to config keys.
var envKeys = map[string]string{
	"SLACK_BOT_TOKEN":        "slack.bot_token",
	"SLACK_SIGNING_SECRET":   "slack.signing_secret",
	"SLACK_API_URL":          "slack.api_url",
	"REPLICATE_API_TOKEN":    "replicate.api_token",
	"REPLICATE_MODEL":        "replicate.model",
	"LORA_WEIGHTS_URL":       "replicate.lora_weights",
	"TRIGGER_WORD":           "generation.trigger_word",
	"DEFAULT_AGE":            "generation.default_age",
	"HOST":                   "server.host",
	"PORT":                   "server.port",
	"LOG_LEVEL":              "log.level",
	"HISTORY_ENABLED":        "history.enabled",
	"HISTORY_DB_PATH":        "history.db_path",
	"HISTORY_RETENTION_DAYS": "history.retention_days",
	"METRICS_ENABLED":        "metrics.enabled",
	"AMQP_URL":               "amqp.url",
	"AMQP_EXCHANGE":          "amqp.exchange",
	"TRACING_ENABLED":        "tracing.enabled",
}

// DefaultConfigDir returns the default config directory (~/.memorylane).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memorylane"
	}
	return filepath.Join(home, ".memorylane")
}

// Load reads .env (if present), then layers the YAML file at path (optional,
// skipped when empty) and the environment over Defaults, and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		path = ExpandPath(path)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		mapped, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the config has valid values. Missing credentials are
// not errors here; see Warnings.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.Replicate.Model) == "" {
		errs = append(errs, "replicate.model is required")
	}
	if cfg.Replicate.APIBase != "" {
		if u, err := url.Parse(cfg.Replicate.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "replicate.api_base must be an absolute URL")
		}
	}
	if strings.TrimSpace(cfg.Generation.TriggerWord) == "" {
		errs = append(errs, "generation.trigger_word is required")
	}
	if n, err := strconv.Atoi(cfg.Generation.DefaultAge); err != nil || n < 1 {
		errs = append(errs, "generation.default_age must be a positive integer")
	}
	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.db_path is required when history is enabled")
	}
	if cfg.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must be >= 0")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}
	if cfg.AMQP.URL != "" && cfg.AMQP.Exchange == "" {
		errs = append(errs, "amqp.exchange is required when amqp.url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings lists settings that leave the bot running in a degraded mode.
func Warnings(cfg *Config) []string {
	var w []string
	if cfg.Slack.BotToken == "" {
		w = append(w, "SLACK_BOT_TOKEN is not set: replies to Slack will fail")
	}
	if cfg.Slack.SigningSecret == "" {
		w = append(w, "SLACK_SIGNING_SECRET is not set: event signatures are not verified")
	}
	if cfg.Replicate.APIToken == "" {
		w = append(w, "REPLICATE_API_TOKEN is not set: image generation will fail")
	}
	return w
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
