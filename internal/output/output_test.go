package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/core/quota"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleEntries() []quota.Entry {
	reset := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return []quota.Entry{
		{Service: "frankfurter", Limit: 10000, Period: quota.PeriodDay, Used: 3, Remaining: 9997, ResetAt: &reset},
		{Service: "geolib", Period: quota.PeriodDay, Unlimited: true, Remaining: quota.Unbounded},
	}
}

func TestRenderQuotaFormats(t *testing.T) {
	entries := sampleEntries()

	rendered, err := Render(FormatTable, entries, func() string { return QuotaTable(entries) })
	require.NoError(t, err)
	require.Contains(t, rendered, "SERVICE")
	require.Contains(t, rendered, "frankfurter")
	require.Contains(t, rendered, "10000/day")
	require.Contains(t, rendered, "unlimited")
	require.Contains(t, rendered, "2026-03-15T00:00:00Z")

	rendered, err = Render(FormatJSON, entries, nil)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"service\": \"frankfurter\"")
	require.Contains(t, rendered, "\"reset_at\": \"2026-03-15T00:00:00Z\"")

	rendered, err = Render(FormatYAML, entries, nil)
	require.NoError(t, err)
	require.Contains(t, rendered, "service: frankfurter")
	require.Contains(t, rendered, "remaining: 9997")
}

func TestWebhookTable(t *testing.T) {
	rendered := WebhookTable([]core.WebhookEvent{{
		WebhookID:   "wh_123",
		EventType:   "payment.succeeded",
		ProcessedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	require.Contains(t, rendered, "wh_123")
	require.Contains(t, rendered, "payment.succeeded")
	require.Contains(t, rendered, "2026-01-02T03:04:05Z")

	require.Contains(t, WebhookTable(nil), "(none)")
}

func TestCreditsTable(t *testing.T) {
	profile := &core.Profile{ID: "user-1", Credits: 12}
	purchases := []core.Purchase{{
		PaymentID:        "pay_1",
		CreditsPurchased: 10,
		AmountPaidCents:  1500,
		Currency:         "USD",
		PurchaseDate:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}}

	rendered := CreditsTable(profile, purchases)
	require.Contains(t, rendered, "user-1")
	require.Contains(t, rendered, "pay_1")
	require.Contains(t, rendered, "15.00 USD")
	require.Contains(t, rendered, "12")

	require.Empty(t, CreditsTable(nil, purchases))
}

func TestServicesTable(t *testing.T) {
	rendered := ServicesTable(config.ValidateServices(&config.Config{}))
	require.Contains(t, rendered, "Dodo webhook secret")
	require.Contains(t, rendered, "missing")
	require.Contains(t, rendered, "fallback")
}
