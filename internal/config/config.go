package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Web      WebConfig      `mapstructure:"web"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// SMTPConfig holds the inbound SMTP listener settings (spec.md §6).
type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// WebConfig holds the HTTP read API settings.
type WebConfig struct {
	Host        string   `mapstructure:"host"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the embedded SQLite database settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig holds OpenTelemetry OTLP exporter settings. Tracing is
// disabled (no-op) when Endpoint is empty.
type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// defaults returns the default configuration as a flat map using koanf's "."
// delimiter for nested keys.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"smtp.host":            "0.0.0.0:2525",
		"smtp.username":        "",
		"smtp.password":        "",
		"smtp.max_connections": 4,

		"web.host":         "0.0.0.0:3000",
		"web.cors_origins": []string{"http://localhost:3000"},

		"database.url": "sqlite:///app/mailfang.db",

		"logging.level":  "info",
		"logging.format": "json",

		"tracing.endpoint":    "",
		"tracing.sample_rate": 0.1,
		"tracing.insecure":    true,
	}
}

// Load reads the configuration from defaults, an optional YAML file, and
// environment variables (prefix MAILFANG_). Later sources override earlier
// ones.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// MAILFANG_SMTP__MAX_CONNECTIONS -> smtp.max_connections. A double
	// underscore delimits nesting so a single underscore can still appear
	// inside a leaf key name (max_connections) without being mistaken for
	// a path separator.
	if err := k.Load(env.Provider("MAILFANG_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "MAILFANG_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.SMTP.MaxConnections < 1 {
		cfg.SMTP.MaxConnections = 1
	}

	return &cfg, nil
}
