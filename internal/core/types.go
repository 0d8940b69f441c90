package core

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the stored record of one authenticated webhook delivery.
// WebhookID is unique; a second delivery with the same id is a duplicate.
type WebhookEvent struct {
	WebhookID   string          `json:"webhook_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Purchase is an append-only record of credits bought by a user.
type Purchase struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	CreditsPurchased int       `json:"credits_purchased"`
	AmountPaidCents  int64     `json:"amount_paid_cents"`
	Currency         string    `json:"currency"`
	PaymentID        string    `json:"payment_id"`
	PurchaseDate     time.Time `json:"purchase_date"`
}

// AmountPaid returns the purchase amount in major currency units.
func (p Purchase) AmountPaid() float64 {
	return float64(p.AmountPaidCents) / 100
}

// LedgerMutation adds credits to a user's balance for one external payment.
// A payment id produces at most one mutation.
type LedgerMutation struct {
	UserID      string
	Credits     int
	AmountCents int64
	Currency    string
	PaymentID   string
	At          time.Time
}

// LedgerResult reports the balance change applied by a mutation. Credits is
// the signed delta: positive for purchases and grants, -1 for a consumed
// consultation.
type LedgerResult struct {
	UserID     string `json:"user_id"`
	OldBalance int    `json:"old_balance"`
	NewBalance int    `json:"new_balance"`
	Credits    int    `json:"credits"`
	PaymentID  string `json:"payment_id"`
}
