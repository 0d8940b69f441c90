package metrics

import (
	"strconv"

	"github.com/pricewise/pricewise/internal/observability"
)

// Payment and outbound-call metrics
const (
	WebhookEventsTotal     = "webhook_events_total"
	WebhookUnverifiedTotal = "webhook_unverified_total"
	RetryAttemptsTotal     = "retry_attempts_total"
	QuotaDeniedTotal       = "quota_denied_total"
	AuditRecordsTotal      = "audit_records_total"
	CreditsAppliedTotal    = "credits_applied_total"
	CreditsConsumedTotal   = "credits_consumed_total"
)

// RecordWebhookEvent counts one webhook delivery by outcome.
func RecordWebhookEvent(outcome string, verified bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		WebhookEventsTotal,
		1,
		map[string]string{
			"outcome":  outcome,
			"verified": strconv.FormatBool(verified),
		},
	)
	if !verified {
		_ = observability.TelemetrySystem.Counter(WebhookUnverifiedTotal, 1, nil)
	}
}

// RecordCreditsApplied counts credits granted to balances.
func RecordCreditsApplied(source string, credits int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CreditsAppliedTotal,
			float64(credits),
			map[string]string{"source": source},
		)
	}
}

// RecordCreditConsumed counts consultation credit debits by result
// (consumed, insufficient).
func RecordCreditConsumed(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CreditsConsumedTotal,
			1,
			map[string]string{"result": result},
		)
	}
}

// RecordRetryAttempt counts a retried outbound call.
func RecordRetryAttempt(operation string, kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetryAttemptsTotal,
			1,
			map[string]string{
				"operation": operation,
				"kind":      kind,
			},
		)
	}
}

// RecordQuotaDenied counts a provider skipped for lack of quota.
func RecordQuotaDenied(service string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaDeniedTotal,
			1,
			map[string]string{"service": service},
		)
	}
}

// RecordAuditRecord counts audit sink records by status (written, dropped, failed).
func RecordAuditRecord(status string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AuditRecordsTotal,
			1,
			map[string]string{"status": status},
		)
	}
}
