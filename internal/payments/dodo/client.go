// Package dodo is a minimal Dodo Payments API client.
package dodo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pricewise/pricewise/internal/core/retry"
)

const defaultBaseURL = "https://live.dodopayments.com"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("dodo payments api key not configured")

// Client talks to the Dodo Payments REST API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		BaseURL: base,
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.APIKey != ""
}

// ProductItem is one line of the checkout cart.
type ProductItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Customer identifies the buyer for the receipt.
type Customer struct {
	Email string `json:"email"`
}

// FeatureFlags toggles checkout page features.
type FeatureFlags struct {
	AllowDiscountCode bool `json:"allow_discount_code"`
}

// CheckoutRequest is the body of POST /checkouts.
type CheckoutRequest struct {
	ProductCart  []ProductItem     `json:"product_cart"`
	Customer     *Customer         `json:"customer,omitempty"`
	ReturnURL    string            `json:"return_url,omitempty"`
	CancelURL    string            `json:"cancel_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	FeatureFlags *FeatureFlags     `json:"feature_flags,omitempty"`
}

// CheckoutSession is the created hosted checkout.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// Payment is the subset of a payment object the service reads.
type Payment struct {
	PaymentID   string            `json:"payment_id"`
	Status      string            `json:"status"`
	TotalAmount int64             `json:"total_amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateCheckout creates a hosted checkout session.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	const op = "dodo.create_checkout"

	if len(req.ProductCart) == 0 {
		return nil, errors.New("checkout requires at least one product")
	}

	var session CheckoutSession
	if err := c.do(ctx, op, http.MethodPost, "/checkouts", req, &session); err != nil {
		return nil, err
	}
	if session.CheckoutURL == "" {
		return nil, retry.NewStatusError(op, http.StatusBadGateway, "checkout response missing checkout_url")
	}
	return &session, nil
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	var payment Payment
	if err := c.do(ctx, "dodo.get_payment", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return retry.FromTransport(op, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.FromTransport(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return retry.FromStatus(op, resp, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
