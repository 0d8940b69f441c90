package currency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/core/quota"
	"github.com/pricewise/pricewise/internal/core/retry"
)

type fakeProvider struct {
	name string
	rate float64

	// err is returned by the first failures calls.
	err      error
	failures int

	mu    sync.Mutex
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Latest(_ context.Context, base string) (*Rates, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	return &Rates{Base: base, Rates: map[string]float64{base: 1, "EUR": p.rate}, Provider: p.name}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newFixture(limits map[string]quota.Limit, providers ...Provider) (*Converter, *quota.Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := quota.NewTracker(limits, quota.WithClock(clock.Now))
	conv := NewConverter(providers, tracker,
		WithClock(clock.Now),
		WithRetry(retry.Options{Sleep: noSleep}),
	)
	return conv, tracker, clock
}

func TestRatesPrefersProviderWithMostQuota(t *testing.T) {
	small := &fakeProvider{name: "small", rate: 0.90}
	large := &fakeProvider{name: "large", rate: 0.91}
	conv, tracker, _ := newFixture(map[string]quota.Limit{
		"small": {Requests: 10, Period: quota.PeriodDay},
		"large": {Requests: 100, Period: quota.PeriodDay},
	}, small, large)

	rates, err := conv.Rates(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, "large", rates.Provider)
	assert.Equal(t, "USD", rates.Base)
	assert.Equal(t, 0, small.callCount())
	assert.Equal(t, 99, tracker.Remaining("large"))
}

func TestRatesFallsThroughProviders(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("bad payload"), failures: 1}
	second := &fakeProvider{name: "second", rate: 0.93}
	conv, tracker, _ := newFixture(map[string]quota.Limit{}, first, second)

	rates, err := conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, "second", rates.Provider)
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, quota.Unbounded, tracker.Remaining("first"))
}

func TestRatesRetriesServerErrorsWithinLink(t *testing.T) {
	flaky := &fakeProvider{name: "flaky", rate: 0.9, err: retry.NewStatusError("currency.flaky", 502, "bad gateway"), failures: 1}
	conv, _, _ := newFixture(map[string]quota.Limit{}, flaky)

	_, err := conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.callCount())
}

func TestRatesCachesPerBase(t *testing.T) {
	p := &fakeProvider{name: "p", rate: 0.9}
	conv, _, clock := newFixture(map[string]quota.Limit{}, p)
	ctx := context.Background()

	_, err := conv.Rates(ctx, "USD")
	require.NoError(t, err)
	_, err = conv.Rates(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, p.callCount())

	_, err = conv.Rates(ctx, "GBP")
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount())

	clock.Advance(DefaultCacheTTL)
	_, err = conv.Rates(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 3, p.callCount())
}

func TestRatesFallbackWhenAllFail(t *testing.T) {
	down := &fakeProvider{name: "down", err: errors.New("boom"), failures: 100}
	conv, _, _ := newFixture(map[string]quota.Limit{}, down)

	rates, err := conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, ProviderFallback, rates.Provider)
	assert.InDelta(t, 83.12, rates.Rates["INR"], 0.0001)

	// Fallback rates are not cached.
	_, err = conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, down.callCount())

	_, err = conv.Rates(context.Background(), "XYZ")
	require.Error(t, err)
}

func TestRatesSkipsExhaustedProviders(t *testing.T) {
	p := &fakeProvider{name: "tiny", rate: 0.9}
	conv, tracker, _ := newFixture(map[string]quota.Limit{
		"tiny": {Requests: 1, Period: quota.PeriodDay},
	}, p)
	tracker.RecordUse("tiny")

	rates, err := conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, ProviderFallback, rates.Provider)
	assert.Equal(t, 0, p.callCount())
}

func TestRatesRateLimitedBlocksProvider(t *testing.T) {
	limited := &fakeProvider{
		name:     "limited",
		err:      &retry.Error{Kind: retry.KindRateLimited, Status: 429, RetryAfter: 30 * time.Second},
		failures: 1,
	}
	conv, tracker, clock := newFixture(map[string]quota.Limit{
		"limited": {Requests: 100, Period: quota.PeriodDay},
	}, limited)

	_, err := conv.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.False(t, tracker.CanUse("limited"))

	clock.Advance(31 * time.Second)
	assert.True(t, tracker.CanUse("limited"))
}

func TestConvert(t *testing.T) {
	p := &fakeProvider{name: "p", rate: 0.5}
	conv, _, _ := newFixture(map[string]quota.Limit{}, p)
	ctx := context.Background()

	got, err := conv.Convert(ctx, 100, "usd", "eur")
	require.NoError(t, err)
	assert.Equal(t, Conversion{Amount: 50, Currency: "EUR", OriginalAmount: 100, OriginalCurrency: "USD", Rate: 0.5}, got)

	got, err = conv.Convert(ctx, 100, "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Rate)
	assert.Equal(t, "USD", got.Currency)

	got, err = conv.Convert(ctx, 100, "USD", "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, Conversion{Amount: 100, Currency: "USD", OriginalAmount: 100, OriginalCurrency: "USD", Rate: 1}, got)
}

func TestNewConverterIgnoresDuplicates(t *testing.T) {
	a := &fakeProvider{name: "a", rate: 1}
	dup := &fakeProvider{name: "a", rate: 2}
	conv := NewConverter([]Provider{a, nil, dup}, nil)
	assert.Equal(t, []string{"a"}, conv.order)
}
