package config

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             3001,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
			"max_body_bytes":   1 << 20,
		},
		"store": map[string]any{
			"driver":     "libsql",
			"path":       "",
			"url":        "",
			"auth_token": "",
		},
		"logging": map[string]any{
			"level":       "info",
			"profile":     "STRUCTURED",
			"environment": "production",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
		"payments": map[string]any{
			"api_key":           "",
			"base_url":          "https://live.dodopayments.com",
			"webhook_secret":    "",
			"webhook_tolerance": "5m",
			"frontend_url":      "https://howmuchshouldiprice.com",
			"timeout":           "15s",
			"products":          map[string]any{},
		},
		"market": map[string]any{
			"scraper_url": "",
			"timeout":     "30s",
		},
		"currency": map[string]any{
			"cache_ttl": "1h",
			"timeout":   "5s",
			"api_key":   "",
		},
		"retry": map[string]any{
			"max_attempts":       3,
			"initial_delay":      "1s",
			"max_delay":          "10s",
			"backoff_multiplier": 2.0,
		},
		"quota": map[string]any{
			"overrides": map[string]any{},
			"margin":    1.0,
		},
		"audit": map[string]any{
			"queue_size": 256,
		},
		"services": map[string]any{},
	}
}
