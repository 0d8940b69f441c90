// Package config provides centralized configuration management for PriceWise.
// It implements a three-layer config pattern:
// Layer 1: built-in defaults
// Layer 2: user config file (explicit path or XDG discovery via gofulmen/config)
// Layer 3: environment variables (gofulmen/config env specs) and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pricewise/pricewise/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	explicitFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins the user config file, bypassing discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	explicitFile = strings.TrimSpace(path)
	configMu.Unlock()
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables already set are kept and
// missing files are ignored.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load loads configuration using the three-layer pattern. It is safe to
// call multiple times (e.g., for config reload).
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	merged := Defaults()

	userFile, err := readUserConfig()
	if err != nil {
		return nil, err
	}
	mergeMaps(merged, userFile)

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	mergeMaps(merged, envOverrides)

	for _, override := range runtimeOverrides {
		mergeMaps(merged, override)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// UserConfigFile returns the config file Load reads, or "" when none exists.
func UserConfigFile() string {
	configMu.RLock()
	explicit := explicitFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit
	}

	for _, path := range getUserConfigPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func readUserConfig() (map[string]any, error) {
	path := UserConfigFile()
	if path == "" {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return v.AllSettings(), nil
}

// getUserConfigPaths returns the list of user config file paths to check
// Uses gofulmen/config for XDG-compliant path discovery
func getUserConfigPaths() []string {
	configName, binaryName := appNamesForPaths()

	legacyNames := []string{}
	if binaryName != configName {
		legacyNames = append(legacyNames, binaryName)
	}
	paths := gfconfig.GetAppConfigPaths(configName, legacyNames...)
	return append(paths, filepath.Join("config", configName+".yaml"))
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},
		{Name: prefix + "ENVIRONMENT", Path: []string{"logging", "environment"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Payments config
		{Name: prefix + "DODO_API_KEY", Path: []string{"payments", "api_key"}, Type: EnvString},
		{Name: prefix + "DODO_BASE_URL", Path: []string{"payments", "base_url"}, Type: EnvString},
		{Name: prefix + "DODO_WEBHOOK_SECRET", Path: []string{"payments", "webhook_secret"}, Type: EnvString},
		{Name: prefix + "DODO_WEBHOOK_TOLERANCE", Path: []string{"payments", "webhook_tolerance"}, Type: EnvString},
		{Name: prefix + "DODO_PRODUCT_5_CREDITS", Path: []string{"payments", "products", "5"}, Type: EnvString},
		{Name: prefix + "DODO_PRODUCT_10_CREDITS", Path: []string{"payments", "products", "10"}, Type: EnvString},
		{Name: prefix + "DODO_PRODUCT_20_CREDITS", Path: []string{"payments", "products", "20"}, Type: EnvString},
		{Name: prefix + "FRONTEND_URL", Path: []string{"payments", "frontend_url"}, Type: EnvString},

		// Market and currency config
		{Name: prefix + "SCRAPER_URL", Path: []string{"market", "scraper_url"}, Type: EnvString},
		{Name: prefix + "SCRAPER_TIMEOUT", Path: []string{"market", "timeout"}, Type: EnvString},
		{Name: prefix + "CURRENCY_CACHE_TTL", Path: []string{"currency", "cache_ttl"}, Type: EnvString},
		{Name: prefix + "EXCHANGERATE_API_KEY", Path: []string{"currency", "api_key"}, Type: EnvString},

		// Retry defaults
		{Name: prefix + "RETRY_MAX_ATTEMPTS", Path: []string{"retry", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "RETRY_INITIAL_DELAY", Path: []string{"retry", "initial_delay"}, Type: EnvString},
		{Name: prefix + "RETRY_MAX_DELAY", Path: []string{"retry", "max_delay"}, Type: EnvString},

		// Quota and audit
		{Name: prefix + "QUOTA_MARGIN", Path: []string{"quota", "margin"}, Type: EnvString},
		{Name: prefix + "AUDIT_QUEUE_SIZE", Path: []string{"audit", "queue_size"}, Type: EnvInt},

		// External collaborators checked at startup
		{Name: prefix + "LLM_API_KEY", Path: []string{"services", "llm_api_key"}, Type: EnvString},
		{Name: prefix + "LOCATIONIQ_API_KEY", Path: []string{"services", "locationiq_key"}, Type: EnvString},
		{Name: prefix + "OPENCAGE_API_KEY", Path: []string{"services", "opencage_key"}, Type: EnvString},
		{Name: prefix + "OPENROUTESERVICE_API_KEY", Path: []string{"services", "openrouteservice_key"}, Type: EnvString},
		{Name: prefix + "GRAPHHOPPER_API_KEY", Path: []string{"services", "graphhopper_key"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "pricewise" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "pricewise"
	binaryName = "pricewise"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// mergeMaps deep-merges src into dst. Nested maps merge; other values replace.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := asMap(value)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstMap, dstIsMap := asMap(dst[key])
		if !dstIsMap {
			dstMap = map[string]any{}
		}
		mergeMaps(dstMap, srcMap)
		dst[key] = dstMap
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out, true
	case map[string]int:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}
