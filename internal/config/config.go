// Package config loads SDK configuration from an optional YAML file with
// environment-variable overrides.
//
// YAML keys (all optional except site_code):
//
//	site_code:        site identifier, required
//	environment:      configuration environment, e.g. "production"
//	base_url:         configuration and event endpoint base URL
//	refresh_interval: configuration polling interval (default "1h")
//	fetch_timeout:    per-request timeout (default "10s")
//	flush_interval:   tracking flush interval (default "1s")
//	log_level:        "debug", "info", "warn", or "error" (default "info")
//	visitor_store:    "", "postgres", or "redis"
//	database_url:     PostgreSQL connection string (visitor_store: postgres)
//	redis_addr:       Redis address (visitor_store: redis)
//	redis_ttl:        Redis visitor TTL (default "720h")
//
// Environment variables override file values: SPLITZ_SITE_CODE,
// SPLITZ_ENVIRONMENT, SPLITZ_BASE_URL, SPLITZ_REFRESH_INTERVAL,
// SPLITZ_FETCH_TIMEOUT, SPLITZ_FLUSH_INTERVAL, SPLITZ_LOG_LEVEL,
// SPLITZ_VISITOR_STORE, SPLITZ_DATABASE_URL, SPLITZ_REDIS_ADDR,
// SPLITZ_REDIS_TTL.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL         = "https://client-config.splitz.io"
	defaultRefreshInterval = time.Hour
	defaultFetchTimeout    = 10 * time.Second
	defaultFlushInterval   = time.Second
	defaultRedisTTL        = 720 * time.Hour
)

// Config holds the runtime configuration for the SDK.
type Config struct {
	SiteCode        string        `yaml:"site_code"`
	Environment     string        `yaml:"environment"`
	BaseURL         string        `yaml:"base_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	LogLevel        string        `yaml:"log_level"`
	VisitorStore    string        `yaml:"visitor_store"`
	DatabaseURL     string        `yaml:"database_url"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisTTL        time.Duration `yaml:"redis_ttl"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrideString(&c.SiteCode, "SPLITZ_SITE_CODE")
	overrideString(&c.Environment, "SPLITZ_ENVIRONMENT")
	overrideString(&c.BaseURL, "SPLITZ_BASE_URL")
	overrideString(&c.LogLevel, "SPLITZ_LOG_LEVEL")
	overrideString(&c.VisitorStore, "SPLITZ_VISITOR_STORE")
	overrideString(&c.DatabaseURL, "SPLITZ_DATABASE_URL")
	overrideString(&c.RedisAddr, "SPLITZ_REDIS_ADDR")

	for _, d := range []struct {
		field *time.Duration
		key   string
	}{
		{&c.RefreshInterval, "SPLITZ_REFRESH_INTERVAL"},
		{&c.FetchTimeout, "SPLITZ_FETCH_TIMEOUT"},
		{&c.FlushInterval, "SPLITZ_FLUSH_INTERVAL"},
		{&c.RedisTTL, "SPLITZ_REDIS_TTL"},
	} {
		if value := strings.TrimSpace(os.Getenv(d.key)); value != "" {
			parsed, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.field = parsed
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RedisTTL <= 0 {
		c.RedisTTL = defaultRedisTTL
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.SiteCode) == "" {
		return errors.New("site_code is required")
	}
	switch c.VisitorStore {
	case "":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("database_url is required when visitor_store is postgres")
		}
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("redis_addr is required when visitor_store is redis")
		}
	default:
		return fmt.Errorf("unknown visitor_store %q", c.VisitorStore)
	}
	return nil
}

func overrideString(field *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*field = value
	}
}
