// Package payments sells credit packages through Dodo Payments.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/core/retry"
	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/payments/dodo"
)

const defaultFrontendURL = "https://howmuchshouldiprice.com"

// Verification statuses.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

var (
	ErrInvalidPackage       = errors.New("invalid credit package")
	ErrProductNotConfigured = errors.New("product not configured for this credit amount")
	ErrUserNotFound         = errors.New("user not found")
)

// CheckoutClient creates hosted checkout sessions.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req dodo.CheckoutRequest) (*dodo.CheckoutSession, error)
}

// Accounts reads the profile and purchase rows the service depends on.
type Accounts interface {
	GetProfile(ctx context.Context, userID string) (*core.Profile, error)
	GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*core.Purchase, error)
}

// Checkout is the created session returned to the frontend.
type Checkout struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

// Verification reports whether a payment has been credited.
type Verification struct {
	Status  string  `json:"status"`
	Credits int     `json:"credits,omitempty"`
	Amount  float64 `json:"amount,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Service creates checkouts and reports payment state.
type Service struct {
	client      CheckoutClient
	accounts    Accounts
	products    map[int]string
	frontendURL string
	retry       retry.Options
	logger      *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger logs retried checkout calls.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetry overrides the retry options for outbound calls.
func WithRetry(opts retry.Options) Option {
	return func(s *Service) {
		s.retry = opts
	}
}

// NewService builds a Service from the payments configuration.
func NewService(cfg config.PaymentsConfig, client CheckoutClient, accounts Accounts, opts ...Option) *Service {
	frontend := strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	if frontend == "" {
		frontend = defaultFrontendURL
	}

	s := &Service{
		client:      client,
		accounts:    accounts,
		products:    ProductIDs(cfg.Products),
		frontendURL: frontend,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProductIDs maps credit amounts to Dodo product ids. Keys that are not
// credit amounts and blank ids are ignored.
func ProductIDs(products map[string]string) map[int]string {
	out := make(map[int]string, len(products))
	for key, id := range products {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		credits, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || credits <= 0 {
			continue
		}
		out[credits] = id
	}
	return out
}

// ProductID returns the product id configured for a credit amount.
func (s *Service) ProductID(credits int) (string, bool) {
	id, ok := s.products[credits]
	return id, ok
}

// CreateCheckout opens a checkout for one of the credit packages.
func (s *Service) CreateCheckout(ctx context.Context, userID string, credits int) (*Checkout, error) {
	pkg, ok := core.FindCreditPackage(credits)
	if !ok {
		return nil, ErrInvalidPackage
	}
	productID, ok := s.ProductID(credits)
	if !ok {
		return nil, ErrProductNotConfigured
	}

	profile, err := s.accounts.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}

	req := dodo.CheckoutRequest{
		ProductCart: []dodo.ProductItem{{ProductID: productID, Quantity: 1}},
		ReturnURL:   s.frontendURL + "/dashboard?payment=success&credits=" + strconv.Itoa(credits),
		CancelURL:   s.frontendURL + "/dashboard?payment=cancelled",
		Metadata: map[string]string{
			"userId":      userID,
			"credits":     strconv.Itoa(credits),
			"packageType": strings.ToLower(pkg.Name),
		},
		FeatureFlags: &dodo.FeatureFlags{AllowDiscountCode: true},
	}
	if profile.Email != "" {
		req.Customer = &dodo.Customer{Email: profile.Email}
	}

	opts := s.retry
	opts.OnRetry = func(attempt int, err error) {
		kind := retry.Classify(err).Kind
		metrics.RecordRetryAttempt("dodo.create_checkout", string(kind))
		if s.logger != nil {
			s.logger.Warn("Retrying checkout creation",
				zap.Int("attempt", attempt),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}

	session, err := retry.Do(ctx, func(ctx context.Context) (*dodo.CheckoutSession, error) {
		return s.client.CreateCheckout(ctx, req)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Checkout created",
			zap.String("user_id", userID),
			zap.Int("credits", credits),
			zap.String("package", pkg.Name),
			zap.String("session_id", session.SessionID))
	}

	return &Checkout{CheckoutURL: session.CheckoutURL, SessionID: session.SessionID}, nil
}

// VerifyPayment reports completed once the payment produced a purchase row.
func (s *Service) VerifyPayment(ctx context.Context, paymentID string) (*Verification, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	purchase, err := s.accounts.GetPurchaseByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if purchase == nil {
		return &Verification{Status: StatusPending, Message: "Payment is being processed"}, nil
	}
	return &Verification{
		Status:  StatusCompleted,
		Credits: purchase.CreditsPurchased,
		Amount:  purchase.AmountPaid(),
	}, nil
}
