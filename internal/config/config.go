package config

import (
	"time"
)

// Config represents the complete application configuration, layered as:
// Layer 1: built-in defaults (Defaults)
// Layer 2: user config file (~/.config/pricewise/config.yaml or --config)
// Layer 3: environment variables (PRICEWISE_*, optionally from .env) and runtime overrides
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Market   MarketConfig   `mapstructure:"market"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Services ServicesConfig `mapstructure:"services"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig contains database configuration.
//
// Driver "libsql" (default) uses Path or URL (Turso) with AuthToken.
// Driver "postgres" uses URL as a pgx connection string.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`

	// Environment is stamped on every server log record
	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PaymentsConfig configures the Dodo Payments integration.
type PaymentsConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	FrontendURL      string        `mapstructure:"frontend_url"`
	Timeout          time.Duration `mapstructure:"timeout"`

	// Products maps a credit amount ("5", "10", "20") to a provider product id.
	Products map[string]string `mapstructure:"products"`
}

// MarketConfig configures the market listings scraper.
type MarketConfig struct {
	ScraperURL string        `mapstructure:"scraper_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CurrencyConfig configures exchange-rate lookups.
type CurrencyConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	APIKey   string        `mapstructure:"api_key"`
}

// RetryConfig holds the defaults for outbound calls.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// QuotaConfig tunes the provider quota tracker.
type QuotaConfig struct {
	// Overrides replaces the daily limit of named providers.
	Overrides map[string]int `mapstructure:"overrides"`

	// Margin scales every limit by a ratio in (0, 1].
	Margin float64 `mapstructure:"margin"`
}

// AuditConfig sizes the asynchronous audit log queue.
type AuditConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// ServicesConfig holds credentials of collaborators that are checked at
// startup but consumed outside this binary.
type ServicesConfig struct {
	LLMAPIKey      string `mapstructure:"llm_api_key"`
	LocationIQKey  string `mapstructure:"locationiq_key"`
	OpenCageKey    string `mapstructure:"opencage_key"`
	OpenRouteKey   string `mapstructure:"openrouteservice_key"`
	GraphHopperKey string `mapstructure:"graphhopper_key"`
}
