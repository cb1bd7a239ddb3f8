package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the CallForge server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir      string
	HTTPPort     int
	LogLevel     string
	LogFormat    string // log output format: "text" or "json"
	TelnyxAPIKey string // provider API key for call-control commands and SMS
	TelnyxAPIURL string // provider API root
	RedisAddr    string // optional: back the session registry with Redis
	PostgresDSN  string // optional: persist call records in Postgres instead of SQLite
}

// defaults
const (
	defaultDataDir   = "./data"
	defaultHTTPPort  = 8080
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultTelnyxURL = "https://api.telnyx.com"
)

// envPrefix is the prefix for all CallForge environment variables.
const envPrefix = "CALLFORGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callforge", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and file storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.TelnyxAPIKey, "telnyx-api-key", "", "provider API key for outbound call-control commands and SMS")
	fs.StringVar(&cfg.TelnyxAPIURL, "telnyx-api-url", defaultTelnyxURL, "provider API base URL")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "Redis address for the session registry (in-process map if empty)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "Postgres DSN for durable storage (SQLite in data-dir if empty)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":       envPrefix + "DATA_DIR",
		"http-port":      envPrefix + "HTTP_PORT",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
		"telnyx-api-key": envPrefix + "TELNYX_API_KEY",
		"telnyx-api-url": envPrefix + "TELNYX_API_URL",
		"redis-addr":     envPrefix + "REDIS_ADDR",
		"postgres-dsn":   envPrefix + "POSTGRES_DSN",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "telnyx-api-key":
			cfg.TelnyxAPIKey = val
		case "telnyx-api-url":
			cfg.TelnyxAPIURL = val
		case "redis-addr":
			cfg.RedisAddr = val
		case "postgres-dsn":
			cfg.PostgresDSN = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.TelnyxAPIURL == "" {
		return fmt.Errorf("telnyx-api-url must not be empty")
	}

	return nil
}

// ProviderConfigured reports whether outbound provider commands can be
// issued. Without a key the engine still ingests webhooks; it just skips
// recording starts, voicemail drops, and hangups.
func (c *Config) ProviderConfigured() bool {
	return c.TelnyxAPIKey != ""
}

// SlogLevel converts the configured log level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
