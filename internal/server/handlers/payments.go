package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/auditlog"
	"github.com/pricewise/pricewise/internal/core/webhook"
	apperrors "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/observability"
	"github.com/pricewise/pricewise/internal/payments"
	"github.com/pricewise/pricewise/internal/server/middleware"
)

// CheckoutRequest is the body of POST /api/payments/create-checkout.
type CheckoutRequest struct {
	UserID  string `json:"userId" validate:"required"`
	Credits int    `json:"credits" validate:"required,oneof=5 10 20"`
}

// WebhookResponse is the body returned to the payment provider.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Status    string `json:"status"`
	WebhookID string `json:"webhook_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Credits   int    `json:"credits,omitempty"`
	Balance   int    `json:"balance,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CreateCheckout starts a hosted checkout for a credit package.
func (a *API) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if a.Payments == nil {
		unavailable(w, r, "payments")
		return
	}

	var req CheckoutRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	checkout, err := a.Payments.CreateCheckout(r.Context(), strings.TrimSpace(req.UserID), req.Credits)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidPackage), errors.Is(err, payments.ErrProductNotConfigured):
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		case errors.Is(err, payments.ErrUserNotFound):
			respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "user not found"))
		default:
			respondWithError(w, r, apperrors.WrapOutbound(r.Context(), err, "failed to create checkout session"))
		}
		return
	}

	writeJSON(w, http.StatusOK, checkout)
}

// Webhook ingests one payment provider delivery. The response status tells
// the provider whether to redeliver.
func (a *API) Webhook(w http.ResponseWriter, r *http.Request) {
	if a.Webhooks == nil {
		unavailable(w, r, "webhooks")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, WebhookResponse{Status: "too_large", Error: "request body too large"})
			return
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed to read webhook body"))
		return
	}

	result := a.Webhooks.Ingest(r.Context(), body, r.Header)
	a.reportWebhook(r, result)

	resp := WebhookResponse{
		Received:  result.HTTPStatus < http.StatusBadRequest,
		Status:    string(result.Outcome),
		WebhookID: result.WebhookID,
		PaymentID: result.PaymentID,
		Credits:   result.Credits,
		Balance:   result.Balance,
	}
	if result.HTTPStatus >= http.StatusBadRequest {
		resp.Error = result.Detail
	}
	writeJSON(w, result.HTTPStatus, resp)
}

func (a *API) reportWebhook(r *http.Request, result webhook.Result) {
	metrics.RecordWebhookEvent(string(result.Outcome), result.Verified)
	if result.Outcome == webhook.OutcomeApplied {
		metrics.RecordCreditsApplied("webhook", result.Credits)
	}

	if logger := observability.ServerLogger; logger != nil {
		fields := []zap.Field{
			zap.String("outcome", string(result.Outcome)),
			zap.Int("http_status", result.HTTPStatus),
			zap.String("webhook_id", result.WebhookID),
			zap.String("event_type", result.EventType),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		}
		if result.PaymentID != "" {
			fields = append(fields, zap.String("payment_id", result.PaymentID))
		}
		if result.Err != nil {
			fields = append(fields, zap.Error(result.Err))
		}

		switch {
		case result.Outcome.NeedsAttention():
			logger.Error("Webhook not processed", fields...)
		case result.Outcome == webhook.OutcomeApplied:
			logger.Info("Webhook applied credits", append(fields,
				zap.String("user_id", result.UserID),
				zap.Int("credits", result.Credits),
				zap.Int("balance", result.Balance))...)
		default:
			logger.Info("Webhook handled", fields...)
		}
		if !result.Verified {
			logger.Warn("Webhook accepted without signature verification", fields...)
		}
	}

	record, ok := webhookAuditRecord(result)
	if ok {
		a.audit(record)
	}
}

func webhookAuditRecord(result webhook.Result) (auditlog.Record, bool) {
	metadata := map[string]any{
		"webhook_id": result.WebhookID,
		"event_type": result.EventType,
		"outcome":    string(result.Outcome),
	}
	if result.PaymentID != "" {
		metadata["payment_id"] = result.PaymentID
	}

	switch {
	case result.Outcome == webhook.OutcomeApplied:
		metadata["credits"] = result.Credits
		metadata["balance"] = result.Balance
		return auditlog.Record{
			Level:    auditlog.LevelInfo,
			Category: auditlog.CategoryPayment,
			Message:  fmt.Sprintf("Applied %d credits", result.Credits),
			UserID:   result.UserID,
			Metadata: metadata,
		}, true
	case result.Outcome == webhook.OutcomePaymentFailed, result.Outcome == webhook.OutcomePaymentCancelled:
		return auditlog.Record{
			Level:    auditlog.LevelWarn,
			Category: auditlog.CategoryPayment,
			Message:  "Payment " + strings.TrimPrefix(string(result.Outcome), "payment_"),
			UserID:   result.UserID,
			Metadata: metadata,
		}, true
	case result.Outcome.NeedsAttention():
		if result.Err != nil {
			metadata["error"] = result.Err.Error()
		}
		message := "Webhook " + string(result.Outcome)
		if result.Detail != "" {
			message += ": " + result.Detail
		}
		return auditlog.Record{
			Level:    auditlog.LevelError,
			Category: auditlog.CategoryWebhook,
			Message:  message,
			UserID:   result.UserID,
			Metadata: metadata,
		}, true
	default:
		return auditlog.Record{}, false
	}
}

// VerifyPayment reports the status of a payment by id.
func (a *API) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if a.Payments == nil {
		unavailable(w, r, "payments")
		return
	}

	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if paymentID == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("payment id is required"))
		return
	}

	verification, err := a.Payments.VerifyPayment(r.Context(), paymentID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapOutbound(r.Context(), err, "failed to verify payment"))
		return
	}
	writeJSON(w, http.StatusOK, verification)
}
