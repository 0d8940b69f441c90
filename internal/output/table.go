package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/core/quota"
)

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// QuotaTable renders the provider quota snapshot.
func QuotaTable(entries []quota.Entry) string {
	t := newTable(table.Row{"Service", "Limit", "Used", "Remaining", "Resets", "Blocked Until"})
	for _, entry := range entries {
		limit := fmt.Sprintf("%d/%s", entry.Limit, entry.Period)
		remaining := strconv.Itoa(entry.Remaining)
		if entry.Unlimited {
			limit = "unlimited"
			remaining = "-"
		}
		t.AppendRow(table.Row{
			entry.Service,
			limit,
			entry.Used,
			remaining,
			formatTime(entry.ResetAt),
			formatTime(entry.BlockedTo),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d services", len(entries))})
	return t.Render()
}

// WebhookTable renders stored webhook events, newest first.
func WebhookTable(events []core.WebhookEvent) string {
	t := newTable(table.Row{"Webhook ID", "Event Type", "Processed At"})
	for _, event := range events {
		t.AppendRow(table.Row{
			event.WebhookID,
			event.EventType,
			event.ProcessedAt.UTC().Format(time.RFC3339),
		})
	}
	if len(events) == 0 {
		t.AppendRow(table.Row{"(none)", "", ""})
	}
	return t.Render()
}

// CreditsTable renders a profile balance followed by its purchases.
func CreditsTable(profile *core.Profile, purchases []core.Purchase) string {
	if profile == nil {
		return ""
	}
	t := newTable(table.Row{"Date", "Payment ID", "Credits", "Amount"})
	for _, p := range purchases {
		t.AppendRow(table.Row{
			p.PurchaseDate.UTC().Format("2006-01-02"),
			p.PaymentID,
			p.CreditsPurchased,
			fmt.Sprintf("%.2f %s", p.AmountPaid(), p.Currency),
		})
	}
	t.AppendFooter(table.Row{"", "Balance", profile.Credits, ""})
	t.SetTitle("User " + profile.ID)
	return t.Render()
}

// ServicesTable renders the collaborator configuration check.
func ServicesTable(services []config.ServiceStatus) string {
	t := newTable(table.Row{"Service", "Required", "Status", "Notes"})
	for _, s := range services {
		status := "ok"
		if !s.Configured {
			status = "missing"
			if !s.Required {
				status = "fallback"
			}
		}
		required := ""
		if s.Required {
			required = "yes"
		}
		t.AppendRow(table.Row{s.Name, required, status, s.Message})
	}
	return t.Render()
}

func formatTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}
