package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pricewise/pricewise/internal/core"
	apperrors "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/metrics"
)

const maxPurchaseLimit = 500

// CreditsResponse is the balance view of a profile.
type CreditsResponse struct {
	UserID  string `json:"userId"`
	Credits int    `json:"credits"`
}

// PurchasesResponse lists a user's purchases, newest first.
type PurchasesResponse struct {
	UserID    string          `json:"userId"`
	Purchases []core.Purchase `json:"purchases"`
}

// Credits returns a user's credit balance.
func (a *API) Credits(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		unavailable(w, r, "accounts")
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	profile, err := a.Accounts.GetProfile(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load profile"))
		return
	}
	if profile == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("user not found"))
		return
	}

	writeJSON(w, http.StatusOK, CreditsResponse{UserID: profile.ID, Credits: profile.Credits})
}

// ConsumeResponse reports the balance left after a consultation was metered.
type ConsumeResponse struct {
	UserID    string `json:"userId"`
	Consumed  int    `json:"consumed"`
	Remaining int    `json:"remaining"`
}

// ConsumeCredit takes one credit for a consultation. An empty balance is a
// 400 and leaves the balance untouched.
func (a *API) ConsumeCredit(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		unavailable(w, r, "accounts")
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	result, err := a.Accounts.ConsumeCredit(r.Context(), userID)
	switch {
	case errors.Is(err, core.ErrInsufficientCredits):
		metrics.RecordCreditConsumed("insufficient")
		respondWithError(w, r, apperrors.New(apperrors.CodeInsufficientCredits, "Insufficient credits"))
		return
	case errors.Is(err, core.ErrProfileNotFound):
		respondWithError(w, r, apperrors.NewNotFoundError("user not found"))
		return
	case err != nil:
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to consume credit"))
		return
	}

	metrics.RecordCreditConsumed("consumed")
	writeJSON(w, http.StatusOK, ConsumeResponse{UserID: userID, Consumed: -result.Credits, Remaining: result.NewBalance})
}

// Purchases returns a user's purchase history.
func (a *API) Purchases(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		unavailable(w, r, "accounts")
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, r, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxPurchaseLimit)
	}

	purchases, err := a.Accounts.ListPurchases(r.Context(), userID, limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load purchases"))
		return
	}
	if purchases == nil {
		purchases = []core.Purchase{}
	}

	writeJSON(w, http.StatusOK, PurchasesResponse{UserID: userID, Purchases: purchases})
}
