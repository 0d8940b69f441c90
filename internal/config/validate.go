package config

import (
	"fmt"
	"strings"
)

// ServiceStatus describes whether one external collaborator is configured.
type ServiceStatus struct {
	Name       string `json:"name"`
	Required   bool   `json:"required"`
	Configured bool   `json:"configured"`
	Message    string `json:"message"`
}

// ValidateServices reports the configuration state of every collaborator
// the backend talks to, required ones first.
func ValidateServices(cfg *Config) []ServiceStatus {
	if cfg == nil {
		cfg = &Config{}
	}

	storeConfigured := strings.TrimSpace(cfg.Store.URL) != "" || strings.TrimSpace(cfg.Store.Path) != ""

	services := []ServiceStatus{
		required("Database store", storeConfigured, "store.url or store.path"),
		required("LLM API", set(cfg.Services.LLMAPIKey), "services.llm_api_key"),
		required("Dodo Payments API", set(cfg.Payments.APIKey), "payments.api_key"),
		required("Dodo webhook secret", set(cfg.Payments.WebhookSecret), "payments.webhook_secret"),

		optional("Market scraper service", set(cfg.Market.ScraperURL), "using mock market data (set market.scraper_url for real scraping)"),
		optional("LocationIQ API (geocoding)", set(cfg.Services.LocationIQKey), "using free tier fallbacks"),
		optional("OpenCage API (geocoding)", set(cfg.Services.OpenCageKey), "using free tier fallbacks"),
		optional("OpenRouteService API (routing)", set(cfg.Services.OpenRouteKey), "using free tier fallbacks"),
		optional("GraphHopper API (routing)", set(cfg.Services.GraphHopperKey), "using free tier fallbacks"),
		optional("ExchangeRate API (currency)", set(cfg.Currency.APIKey), "using keyless providers"),
	}

	for _, product := range []string{"5", "10", "20"} {
		services = append(services, optional(
			fmt.Sprintf("Dodo product for %s credits", product),
			set(cfg.Payments.Products[product]),
			"checkout for this package is unavailable",
		))
	}

	return services
}

// MissingRequired returns the names of required services that are not configured.
func MissingRequired(services []ServiceStatus) []string {
	var missing []string
	for _, service := range services {
		if service.Required && !service.Configured {
			missing = append(missing, service.Name)
		}
	}
	return missing
}

func required(name string, configured bool, key string) ServiceStatus {
	message := "configured"
	if !configured {
		message = "missing " + key
	}
	return ServiceStatus{Name: name, Required: true, Configured: configured, Message: message}
}

func optional(name string, configured bool, fallback string) ServiceStatus {
	message := "configured"
	if !configured {
		message = "optional: " + fallback
	}
	return ServiceStatus{Name: name, Configured: configured, Message: message}
}

func set(value string) bool {
	return strings.TrimSpace(value) != ""
}
