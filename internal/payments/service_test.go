package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core"
	"github.com/pricewise/pricewise/internal/core/retry"
	"github.com/pricewise/pricewise/internal/payments/dodo"
)

type fakeAccounts struct {
	profiles  map[string]*core.Profile
	purchases map[string]*core.Purchase
	err       error
}

func (f *fakeAccounts) GetProfile(_ context.Context, userID string) (*core.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[userID], nil
}

func (f *fakeAccounts) GetPurchaseByPaymentID(_ context.Context, paymentID string) (*core.Purchase, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.purchases[paymentID], nil
}

type fakeCheckout struct {
	errs     []error
	calls    int
	requests []dodo.CheckoutRequest
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, req dodo.CheckoutRequest) (*dodo.CheckoutSession, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &dodo.CheckoutSession{SessionID: "cks_1", CheckoutURL: "https://checkout.example/cks_1"}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(client CheckoutClient, accounts Accounts) *Service {
	cfg := config.PaymentsConfig{
		FrontendURL: "https://app.example/",
		Products:    map[string]string{"5": "pdt_5", "10": "pdt_10", "20": "pdt_20", "bogus": "x"},
	}
	return NewService(cfg, client, accounts, WithRetry(retry.Options{Sleep: noSleep}))
}

func testAccounts() *fakeAccounts {
	return &fakeAccounts{
		profiles: map[string]*core.Profile{
			"u1": {ID: "u1", Email: "a@example.com"},
		},
		purchases: map[string]*core.Purchase{
			"pay_1": {PaymentID: "pay_1", CreditsPurchased: 10, AmountPaidCents: 1500},
		},
	}
}

func TestProductIDs(t *testing.T) {
	ids := ProductIDs(map[string]string{"5": " pdt_5 ", "10": "", "x": "y", "-1": "z"})
	assert.Equal(t, map[int]string{5: "pdt_5"}, ids)
}

func TestCreateCheckoutBuildsRequest(t *testing.T) {
	client := &fakeCheckout{}
	svc := newTestService(client, testAccounts())

	checkout, err := svc.CreateCheckout(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, "cks_1", checkout.SessionID)
	assert.Equal(t, "https://checkout.example/cks_1", checkout.CheckoutURL)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, []dodo.ProductItem{{ProductID: "pdt_10", Quantity: 1}}, req.ProductCart)
	assert.Equal(t, "https://app.example/dashboard?payment=success&credits=10", req.ReturnURL)
	assert.Equal(t, "https://app.example/dashboard?payment=cancelled", req.CancelURL)
	assert.Equal(t, map[string]string{"userId": "u1", "credits": "10", "packageType": "professional"}, req.Metadata)
	assert.Equal(t, "a@example.com", req.Customer.Email)
	assert.True(t, req.FeatureFlags.AllowDiscountCode)
}

func TestCreateCheckoutRejections(t *testing.T) {
	svc := newTestService(&fakeCheckout{}, testAccounts())

	_, err := svc.CreateCheckout(context.Background(), "u1", 7)
	require.ErrorIs(t, err, ErrInvalidPackage)

	_, err = svc.CreateCheckout(context.Background(), "ghost", 5)
	require.ErrorIs(t, err, ErrUserNotFound)

	noProducts := NewService(config.PaymentsConfig{}, &fakeCheckout{}, testAccounts())
	_, err = noProducts.CreateCheckout(context.Background(), "u1", 5)
	require.ErrorIs(t, err, ErrProductNotConfigured)
}

func TestCreateCheckoutRetriesServerErrors(t *testing.T) {
	client := &fakeCheckout{errs: []error{
		retry.NewStatusError("dodo.create_checkout", 503, "unavailable"),
	}}
	svc := newTestService(client, testAccounts())

	_, err := svc.CreateCheckout(context.Background(), "u1", 20)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestCreateCheckoutStopsOnClientError(t *testing.T) {
	client := &fakeCheckout{errs: []error{
		retry.NewStatusError("dodo.create_checkout", 422, "bad product"),
	}}
	svc := newTestService(client, testAccounts())

	_, err := svc.CreateCheckout(context.Background(), "u1", 5)
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, retry.KindClientError, retry.Classify(err).Kind)
}

func TestVerifyPayment(t *testing.T) {
	svc := newTestService(&fakeCheckout{}, testAccounts())

	v, err := svc.VerifyPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.Equal(t, 10, v.Credits)
	assert.InDelta(t, 15.0, v.Amount, 0.001)

	v, err = svc.VerifyPayment(context.Background(), "pay_unknown")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)

	_, err = svc.VerifyPayment(context.Background(), " ")
	require.Error(t, err)
}

func TestVerifyPaymentStoreError(t *testing.T) {
	svc := newTestService(&fakeCheckout{}, &fakeAccounts{err: errors.New("db down")})

	_, err := svc.VerifyPayment(context.Background(), "pay_1")
	require.ErrorContains(t, err, "db down")
}
