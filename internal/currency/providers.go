package currency

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pricewise/pricewise/internal/core/retry"
)

// Provider names. They double as quota tracker service names.
const (
	ProviderExchangeRateAPI  = "exchangerate-api"
	ProviderFrankfurter      = "frankfurter"
	ProviderExchangeRateHost = "exchangerate-host"
)

// Provider fetches the latest rates for a base currency.
type Provider interface {
	Name() string
	Latest(ctx context.Context, base string) (*Rates, error)
}

// HTTPProvider is a JSON rates endpoint. The rates object is read from
// RatesPath with gjson.
type HTTPProvider struct {
	ProviderName string
	// URL builds the request URL for a base currency.
	URL        func(base string) string
	RatesPath  string
	HTTPClient *http.Client
	// StripBase removes a base prefix from rate keys ("USDEUR" -> "EUR").
	StripBase bool
}

// Name returns the provider name.
func (p *HTTPProvider) Name() string { return p.ProviderName }

// Latest fetches and decodes the rates.
func (p *HTTPProvider) Latest(ctx context.Context, base string) (*Rates, error) {
	op := "currency." + p.ProviderName
	base = normalizeCode(base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(base), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.FromTransport(op, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.FromTransport(op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.FromStatus(op, resp, body)
	}

	rates := parseRates(body, p.RatesPath, base, p.StripBase)
	if len(rates) == 0 {
		return nil, fmt.Errorf("%s returned no rates", p.ProviderName)
	}
	return &Rates{Base: base, Rates: rates, Provider: p.ProviderName, FetchedAt: time.Now().UTC()}, nil
}

func parseRates(body []byte, path, base string, stripBase bool) map[string]float64 {
	node := gjson.GetBytes(body, path)
	if !node.IsObject() {
		return nil
	}

	rates := make(map[string]float64)
	node.ForEach(func(key, value gjson.Result) bool {
		code := normalizeCode(key.String())
		if stripBase && len(code) == 2*len(base) && strings.HasPrefix(code, base) {
			code = strings.TrimPrefix(code, base)
		}
		if rate := value.Float(); rate > 0 {
			rates[code] = rate
		}
		return true
	})
	if len(rates) > 0 {
		rates[base] = 1
	}
	return rates
}

// DefaultProviders returns the free rate providers. apiKey is used by
// exchangerate-host only.
func DefaultProviders(client *http.Client, apiKey string) []Provider {
	key := strings.TrimSpace(apiKey)
	return []Provider{
		&HTTPProvider{
			ProviderName: ProviderExchangeRateAPI,
			URL: func(base string) string {
				return "https://api.exchangerate-api.com/v4/latest/" + url.PathEscape(base)
			},
			RatesPath:  "rates",
			HTTPClient: client,
		},
		&HTTPProvider{
			ProviderName: ProviderFrankfurter,
			URL: func(base string) string {
				return "https://api.frankfurter.app/latest?from=" + url.QueryEscape(base)
			},
			RatesPath:  "rates",
			HTTPClient: client,
		},
		&HTTPProvider{
			ProviderName: ProviderExchangeRateHost,
			URL: func(base string) string {
				q := url.Values{}
				q.Set("source", base)
				if key != "" {
					q.Set("access_key", key)
				}
				return "https://api.exchangerate.host/live?" + q.Encode()
			},
			RatesPath:  "quotes",
			HTTPClient: client,
			StripBase:  true,
		},
	}
}
