package webhook

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// EventKind is the interpreted category of a payment event.
type EventKind string

const (
	KindSucceeded EventKind = "succeeded"
	KindFailed    EventKind = "failed"
	KindCancelled EventKind = "cancelled"
	KindOther     EventKind = "other"
)

// ErrMalformedPayload reports a body that is not a JSON object.
var ErrMalformedPayload = errors.New("webhook payload is not a JSON object")

// Event is the subset of a payment provider event the ingestor acts on.
type Event struct {
	Type          string
	Kind          EventKind
	PaymentID     string
	UserID        string
	Credits       int
	AmountCents   int64
	Currency      string
	CustomerEmail string
	ErrorCode     string
	ErrorMessage  string
}

// ParseEvent extracts an Event from a raw webhook body. Missing metadata is
// left zero; callers decide whether the event is actionable.
func ParseEvent(body []byte) (Event, error) {
	if !gjson.ValidBytes(body) {
		return Event{}, ErrMalformedPayload
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Event{}, ErrMalformedPayload
	}

	data := root.Get("data")
	event := Event{
		Type:          strings.TrimSpace(root.Get("type").String()),
		PaymentID:     firstString(data, "payment_id", "id"),
		UserID:        strings.TrimSpace(data.Get("metadata.userId").String()),
		Credits:       intValue(data.Get("metadata.credits")),
		Currency:      strings.ToUpper(strings.TrimSpace(data.Get("currency").String())),
		CustomerEmail: firstString(data, "customer.email", "customer_email"),
		ErrorCode:     firstString(data, "error_code"),
		ErrorMessage:  firstString(data, "error_message"),
	}
	if amount := data.Get("total_amount"); amount.Exists() {
		event.AmountCents = amount.Int()
	} else {
		event.AmountCents = data.Get("amount").Int()
	}
	if event.Currency == "" {
		event.Currency = "USD"
	}

	event.Kind = classify(event.Type, data)
	if event.Type == "" {
		event.Type = strings.TrimSpace(data.Get("payload_type").String())
	}
	return event, nil
}

func classify(eventType string, data gjson.Result) EventKind {
	switch strings.ToLower(eventType) {
	case "payment.succeeded":
		return KindSucceeded
	case "payment.failed":
		return KindFailed
	case "payment.cancelled", "payment.canceled":
		return KindCancelled
	case "":
	default:
		return KindOther
	}

	if !strings.EqualFold(data.Get("payload_type").String(), "payment") {
		return KindOther
	}
	switch strings.ToLower(data.Get("status").String()) {
	case "succeeded":
		return KindSucceeded
	case "failed":
		return KindFailed
	case "cancelled", "canceled":
		return KindCancelled
	default:
		return KindOther
	}
}

func firstString(data gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(data.Get(path).String()); value != "" {
			return value
		}
	}
	return ""
}

// intValue accepts numbers and numeric strings. Fractions, non-numeric and
// missing values yield zero.
func intValue(value gjson.Result) int {
	switch value.Type {
	case gjson.Number:
		if value.Num != float64(int64(value.Num)) {
			return 0
		}
		return int(value.Int())
	case gjson.String:
		parsed, err := strconv.Atoi(strings.TrimSpace(value.Str))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
