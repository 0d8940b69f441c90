// Package webhook authenticates, deduplicates and applies payment provider
// webhook deliveries.
//
// Once a delivery is authenticated it is always acknowledged with 200 so the
// provider does not redeliver it; problems after that point surface through
// the Result outcome.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pricewise/pricewise/internal/core"
)

// Outcome is the terminal state of one delivery.
type Outcome string

const (
	OutcomeRejected         Outcome = "rejected"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeStoreError       Outcome = "store_error"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeApplied          Outcome = "applied"
	OutcomePaymentFailed    Outcome = "payment_failed"
	OutcomePaymentCancelled Outcome = "payment_cancelled"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeUnrecognized     Outcome = "unrecognized"
	OutcomeLedgerError      Outcome = "ledger_error"
)

// NeedsAttention reports outcomes an operator should follow up on.
func (o Outcome) NeedsAttention() bool {
	switch o {
	case OutcomeRejected, OutcomeStoreError, OutcomeMalformed, OutcomeLedgerError:
		return true
	default:
		return false
	}
}

// EventStore is the idempotency store. RecordWebhook must insert atomically
// and report false when the id already exists.
type EventStore interface {
	WebhookSeen(ctx context.Context, webhookID string) (bool, error)
	RecordWebhook(ctx context.Context, event core.WebhookEvent) (bool, error)
}

// Ledger applies credit mutations. ApplyCredit returns core.ErrAlreadyApplied
// when the payment id was applied before.
type Ledger interface {
	ApplyCredit(ctx context.Context, mutation core.LedgerMutation) (core.LedgerResult, error)
}

// Config holds the verification settings. An empty Secret disables
// signature checks.
type Config struct {
	Secret    string
	Tolerance time.Duration
}

// Result describes how a delivery was handled.
type Result struct {
	HTTPStatus int     `json:"-"`
	Outcome    Outcome `json:"status"`
	Verified   bool    `json:"-"`
	WebhookID  string  `json:"webhook_id,omitempty"`
	EventType  string  `json:"event_type,omitempty"`
	PaymentID  string  `json:"payment_id,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
	Credits    int     `json:"credits,omitempty"`
	Balance    int     `json:"balance,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	Err        error   `json:"-"`
}

// DefaultLedgerTimeout bounds the ledger step once a delivery is recorded.
const DefaultLedgerTimeout = 10 * time.Second

// Ingestor processes webhook deliveries end to end.
type Ingestor struct {
	verifier      *Verifier
	events        EventStore
	ledger        Ledger
	clock         func() time.Time
	ledgerTimeout time.Duration
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock replaces the time source used for timestamps and verification.
func WithClock(clock func() time.Time) Option {
	return func(i *Ingestor) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// WithLedgerTimeout replaces DefaultLedgerTimeout.
func WithLedgerTimeout(timeout time.Duration) Option {
	return func(i *Ingestor) {
		if timeout > 0 {
			i.ledgerTimeout = timeout
		}
	}
}

// NewIngestor builds an ingestor. It fails only when a configured secret
// cannot be decoded.
func NewIngestor(cfg Config, events EventStore, ledger Ledger, opts ...Option) (*Ingestor, error) {
	ing := &Ingestor{
		events:        events,
		ledger:        ledger,
		clock:         func() time.Time { return time.Now().UTC() },
		ledgerTimeout: DefaultLedgerTimeout,
	}
	for _, opt := range opts {
		opt(ing)
	}

	if strings.TrimSpace(cfg.Secret) != "" {
		verifier, err := NewVerifier(cfg.Secret, cfg.Tolerance, ing.clock)
		if err != nil {
			return nil, err
		}
		ing.verifier = verifier
	}
	return ing, nil
}

// Verifies reports whether signatures are checked.
func (i *Ingestor) Verifies() bool {
	return i != nil && i.verifier != nil
}

// Ingest handles one delivery.
func (i *Ingestor) Ingest(ctx context.Context, body []byte, headers http.Header) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if headers == nil {
		headers = http.Header{}
	}

	result := Result{WebhookID: strings.TrimSpace(headers.Get(HeaderID))}

	if i.verifier != nil {
		if err := i.verifier.Verify(body, headers); err != nil {
			return result.finish(http.StatusUnauthorized, OutcomeRejected, "invalid webhook signature", err)
		}
		result.Verified = true
	}

	if result.WebhookID == "" {
		return result.finish(http.StatusBadRequest, OutcomeInvalid, "missing webhook-id header", nil)
	}
	if i.events == nil {
		return result.finish(http.StatusInternalServerError, OutcomeStoreError, "idempotency store unavailable", errors.New("event store is not configured"))
	}

	seen, err := i.events.WebhookSeen(ctx, result.WebhookID)
	if err != nil {
		return result.finish(http.StatusInternalServerError, OutcomeStoreError, "idempotency lookup failed", err)
	}
	if seen {
		return result.finish(http.StatusOK, OutcomeDuplicate, "webhook already processed", nil)
	}

	event, parseErr := ParseEvent(body)
	result.EventType = event.Type
	result.PaymentID = event.PaymentID
	result.UserID = event.UserID

	inserted, err := i.events.RecordWebhook(ctx, core.WebhookEvent{
		WebhookID:   result.WebhookID,
		EventType:   event.Type,
		Payload:     storedPayload(body, parseErr),
		ProcessedAt: i.clock(),
	})
	if err != nil {
		return result.finish(http.StatusInternalServerError, OutcomeStoreError, "idempotency insert failed", err)
	}
	if !inserted {
		return result.finish(http.StatusOK, OutcomeDuplicate, "webhook already processed", nil)
	}

	if parseErr != nil {
		return result.finish(http.StatusOK, OutcomeMalformed, "payload is not valid JSON", parseErr)
	}

	// The webhook id is committed, so a redelivery would be a duplicate. The
	// ledger step must not be cut short by the caller going away.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.ledgerTimeout)
	defer cancel()

	switch event.Kind {
	case KindSucceeded:
		return i.applyCredit(dispatchCtx, result, event)
	case KindFailed:
		detail := "payment failed"
		if event.ErrorCode != "" {
			detail += ": " + event.ErrorCode
		}
		if event.ErrorMessage != "" {
			detail += " " + event.ErrorMessage
		}
		return result.finish(http.StatusOK, OutcomePaymentFailed, detail, nil)
	case KindCancelled:
		return result.finish(http.StatusOK, OutcomePaymentCancelled, "payment cancelled", nil)
	default:
		return result.finish(http.StatusOK, OutcomeUnrecognized, "event type not handled", nil)
	}
}

func (i *Ingestor) applyCredit(ctx context.Context, result Result, event Event) Result {
	if event.UserID == "" {
		return result.finish(http.StatusOK, OutcomeMalformed, "missing metadata.userId", nil)
	}
	if event.Credits <= 0 {
		return result.finish(http.StatusOK, OutcomeMalformed, "missing or non-positive metadata.credits", nil)
	}
	if event.PaymentID == "" {
		return result.finish(http.StatusOK, OutcomeMalformed, "missing payment id", nil)
	}
	result.Credits = event.Credits

	if i.ledger == nil {
		return result.finish(http.StatusOK, OutcomeLedgerError, "ledger unavailable", errors.New("ledger is not configured"))
	}

	applied, err := i.ledger.ApplyCredit(ctx, core.LedgerMutation{
		UserID:      event.UserID,
		Credits:     event.Credits,
		AmountCents: event.AmountCents,
		Currency:    event.Currency,
		PaymentID:   event.PaymentID,
		At:          i.clock(),
	})
	switch {
	case errors.Is(err, core.ErrAlreadyApplied):
		return result.finish(http.StatusOK, OutcomeDuplicate, "payment already applied", nil)
	case errors.Is(err, core.ErrProfileNotFound):
		return result.finish(http.StatusOK, OutcomeLedgerError, "profile not found", err)
	case err != nil:
		return result.finish(http.StatusOK, OutcomeLedgerError, "failed to update credits", err)
	}

	result.Balance = applied.NewBalance
	return result.finish(http.StatusOK, OutcomeApplied, "credits added", nil)
}

func (r Result) finish(status int, outcome Outcome, detail string, err error) Result {
	r.HTTPStatus = status
	r.Outcome = outcome
	r.Detail = detail
	r.Err = err
	return r
}

func storedPayload(body []byte, parseErr error) json.RawMessage {
	if parseErr == nil {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return json.RawMessage(`null`)
	}
	return quoted
}
