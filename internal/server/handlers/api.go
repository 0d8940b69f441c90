package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricewise/pricewise/internal/auditlog"
	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/core/quota"
	"github.com/pricewise/pricewise/internal/core/webhook"
	"github.com/pricewise/pricewise/internal/currency"
	apperrors "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/market"
	"github.com/pricewise/pricewise/internal/payments"
)

// DefaultMaxBodyBytes caps JSON and webhook request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// WebhookIngestor handles one payment webhook delivery.
type WebhookIngestor interface {
	Ingest(ctx context.Context, body []byte, headers http.Header) webhook.Result
}

// PaymentService creates checkouts and verifies payments.
type PaymentService interface {
	CreateCheckout(ctx context.Context, userID string, credits int) (*payments.Checkout, error)
	VerifyPayment(ctx context.Context, paymentID string) (*payments.Verification, error)
}

// AccountStore reads balances and purchase history and meters
// consultations against the balance.
type AccountStore interface {
	GetProfile(ctx context.Context, userID string) (*core.Profile, error)
	ListPurchases(ctx context.Context, userID string, limit int) ([]core.Purchase, error)
	ConsumeCredit(ctx context.Context, userID string) (core.LedgerResult, error)
}

// MarketClient returns comparable listings.
type MarketClient interface {
	Listings(ctx context.Context, q market.Query) (*market.Result, error)
}

// CurrencyConverter converts amounts between currencies.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount float64, from, to string) (currency.Conversion, error)
}

// QuotaReporter exposes provider quota state.
type QuotaReporter interface {
	Snapshot() []quota.Entry
}

// AuditSink receives payment and error records.
type AuditSink interface {
	Log(record auditlog.Record) bool
}

// API holds the dependencies of the /api routes. Nil dependencies make
// their routes answer 503.
type API struct {
	Webhooks     WebhookIngestor
	Payments     PaymentService
	Accounts     AccountStore
	Market       MarketClient
	Currency     CurrencyConverter
	Quotas       QuotaReporter
	Audit        AuditSink
	MaxBodyBytes int64

	validate *validator.Validate
}

// NewAPI returns an API with a shared validator.
func NewAPI() *API {
	return &API{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Mount registers the /api routes on r.
func (a *API) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/create-checkout", a.CreateCheckout)
		r.Post("/payments/webhook", a.Webhook)
		r.Get("/payments/verify/{paymentId}", a.VerifyPayment)
		r.Get("/credits/{userId}", a.Credits)
		r.Get("/credits/{userId}/purchases", a.Purchases)
		r.Post("/credits/{userId}/consume", a.ConsumeCredit)
		r.Get("/market/listings", a.Listings)
		r.Get("/currency/convert", a.Convert)
		r.Get("/quotas", a.QuotaSnapshot)
	})
}

func (a *API) validator() *validator.Validate {
	if a.validate == nil {
		a.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return a.validate
}

func (a *API) maxBodyBytes() int64 {
	if a.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return a.MaxBodyBytes
}

func (a *API) audit(record auditlog.Record) {
	if a.Audit != nil {
		a.Audit.Log(record)
	}
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes())
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.WrapInvalidInput(r.Context(), err, "request body is required")
		}
		return apperrors.WrapInvalidInput(r.Context(), err, "invalid request body")
	}

	if err := a.validator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]interface{}, len(ve))
			for _, fe := range ve {
				fields[jsonFieldName(fe.Field())] = fe.Tag()
			}
			env := apperrors.NewValidationError("validation failed")
			return apperrors.WithDetails(env, map[string]interface{}{"fields": fields})
		}
		return apperrors.WrapValidationError(r.Context(), err, "validation failed")
	}
	return nil
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func unavailable(w http.ResponseWriter, r *http.Request, component string) {
	respondWithError(w, r, apperrors.NewServiceUnavailableError(fmt.Sprintf("%s is not configured", component)))
}
