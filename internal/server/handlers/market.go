package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/pricewise/pricewise/internal/currency"
	apperrors "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/market"
)

// ConversionResponse adds the formatted amount to a conversion.
type ConversionResponse struct {
	currency.Conversion
	Formatted string `json:"formatted"`
}

// Listings returns comparable marketplace listings with price statistics.
func (a *API) Listings(w http.ResponseWriter, r *http.Request) {
	if a.Market == nil {
		unavailable(w, r, "market")
		return
	}

	values := r.URL.Query()
	q := market.Query{
		BusinessType: values.Get("business_type"),
		OfferingType: values.Get("offering_type"),
		Query:        values.Get("query"),
		Region:       values.Get("region"),
	}

	result, err := a.Market.Listings(r.Context(), q)
	if err != nil {
		if errors.Is(err, market.ErrInvalidQuery) {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
			return
		}
		respondWithError(w, r, apperrors.WrapOutbound(r.Context(), err, "failed to load market listings"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Convert converts an amount between two currencies.
func (a *API) Convert(w http.ResponseWriter, r *http.Request) {
	if a.Currency == nil {
		unavailable(w, r, "currency")
		return
	}

	values := r.URL.Query()
	amount, err := strconv.ParseFloat(strings.TrimSpace(values.Get("amount")), 64)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "amount must be a number"))
		return
	}
	from := strings.TrimSpace(values.Get("from"))
	if from == "" {
		from = "USD"
	}
	to := strings.TrimSpace(values.Get("to"))
	if to == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("target currency is required"))
		return
	}

	conversion, err := a.Currency.Convert(r.Context(), amount, from, to)
	if err != nil {
		respondWithError(w, r, apperrors.WrapOutbound(r.Context(), err, "failed to convert currency"))
		return
	}

	writeJSON(w, http.StatusOK, ConversionResponse{
		Conversion: conversion,
		Formatted:  currency.Format(conversion.Amount, conversion.Currency),
	})
}

// QuotaSnapshot reports the provider quota state.
func (a *API) QuotaSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.Quotas == nil {
		unavailable(w, r, "quota tracker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": a.Quotas.Snapshot()})
}
