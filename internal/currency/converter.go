package currency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/core/quota"
	"github.com/pricewise/pricewise/internal/core/retry"
	"github.com/pricewise/pricewise/internal/metrics"
)

// DefaultCacheTTL is how long fetched rates are reused.
const DefaultCacheTTL = time.Hour

// rateLimitedBackoff blocks a provider that answered 429 without Retry-After.
const rateLimitedBackoff = time.Minute

// ErrNoProviders is returned by Rates when quota blocks every provider.
var ErrNoProviders = errors.New("no exchange rate provider has quota")

var errQuotaExhausted = errors.New("local quota exhausted")

// Converter picks the provider with the most remaining quota, falls
// through the rest on failure and caches results per base currency.
type Converter struct {
	providers map[string]Provider
	order     []string
	tracker   *quota.Tracker
	ttl       time.Duration
	retry     retry.Options
	clock     func() time.Time
	logger    *logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	rates   *Rates
	expires time.Time
}

// Option configures a Converter.
type Option func(*Converter)

// WithCacheTTL sets how long rates are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Converter) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRetry sets the retry options used for each provider.
func WithRetry(opts retry.Options) Option {
	return func(c *Converter) {
		c.retry = opts
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Converter) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger logs provider failures.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Converter) {
		c.logger = logger
	}
}

// NewConverter builds a converter over providers. A nil tracker disables
// quota checks.
func NewConverter(providers []Provider, tracker *quota.Tracker, opts ...Option) *Converter {
	c := &Converter{
		providers: make(map[string]Provider, len(providers)),
		tracker:   tracker,
		ttl:       DefaultCacheTTL,
		clock:     time.Now,
		cache:     make(map[string]cacheEntry),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := c.providers[p.Name()]; dup {
			continue
		}
		c.providers[p.Name()] = p
		c.order = append(c.order, p.Name())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rates returns rates for base from cache or the first provider that
// answers. When every provider fails the built-in table is used; the error
// is non-nil only when no table entry exists for base either.
func (c *Converter) Rates(ctx context.Context, base string) (*Rates, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	base = normalizeCode(base)
	if base == "" {
		base = "USD"
	}

	if cached := c.cached(base); cached != nil {
		return cached, nil
	}

	rates, err := c.fetch(ctx, base)
	if err == nil {
		c.store(base, rates)
		return rates, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if c.logger != nil {
		c.logger.Warn("Exchange rate providers unavailable, using fallback rates",
			zap.String("base", base),
			zap.Error(err))
	}
	if fallback := FallbackRates(base, c.clock().UTC()); fallback != nil {
		return fallback, nil
	}
	return nil, err
}

// Convert converts amount from one currency to another. Unknown pairs
// return the original amount in the original currency with rate 1.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) (Conversion, error) {
	from = normalizeCode(from)
	to = normalizeCode(to)
	unchanged := Conversion{
		Amount:           amount,
		Currency:         from,
		OriginalAmount:   amount,
		OriginalCurrency: from,
		Rate:             1,
	}
	if from == to {
		unchanged.Currency = to
		return unchanged, nil
	}

	rates, err := c.Rates(ctx, from)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Conversion{}, ctxErr
		}
		return unchanged, nil
	}

	rate, ok := rates.Rates[to]
	if !ok || rate <= 0 {
		return unchanged, nil
	}
	return Conversion{
		Amount:           amount * rate,
		Currency:         to,
		OriginalAmount:   amount,
		OriginalCurrency: from,
		Rate:             rate,
	}, nil
}

func (c *Converter) fetch(ctx context.Context, base string) (*Rates, error) {
	names := c.order
	if c.tracker != nil {
		names = c.tracker.RankByAvailability(c.order)
	}

	chain := make([]retry.Named[*Rates], 0, len(names))
	for _, name := range names {
		if c.tracker != nil && !c.tracker.CanUse(name) {
			metrics.RecordQuotaDenied(name)
			continue
		}
		provider := c.providers[name]
		chain = append(chain, retry.Named[*Rates]{
			Name: name,
			Op: func(ctx context.Context) (*Rates, error) {
				return c.call(ctx, provider, base)
			},
		})
	}
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	opts := c.retry
	opts.OnRetry = func(attempt int, err error) {
		metrics.RecordRetryAttempt("currency.rates", string(retry.Classify(err).Kind))
	}
	return retry.DoChain(ctx, chain, opts)
}

func (c *Converter) call(ctx context.Context, provider Provider, base string) (*Rates, error) {
	name := provider.Name()
	if c.tracker != nil {
		if !c.tracker.CanUse(name) {
			metrics.RecordQuotaDenied(name)
			return nil, fmt.Errorf("%s: %w", name, errQuotaExhausted)
		}
		c.tracker.RecordUse(name)
	}

	rates, err := provider.Latest(ctx, base)
	if err != nil {
		if tagged := retry.Classify(err); tagged.Kind == retry.KindRateLimited && c.tracker != nil {
			wait := tagged.RetryAfter
			if wait <= 0 {
				wait = rateLimitedBackoff
			}
			c.tracker.RecordRateLimited(name, wait)
		}
		if c.logger != nil {
			c.logger.Debug("Exchange rate provider failed",
				zap.String("provider", name),
				zap.Error(err))
		}
		return nil, err
	}
	return rates, nil
}

func (c *Converter) cached(base string) *Rates {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[base]
	if !ok {
		return nil
	}
	if !c.clock().Before(entry.expires) {
		delete(c.cache, base)
		return nil
	}
	return entry.rates
}

func (c *Converter) store(base string, rates *Rates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[base] = cacheEntry{rates: rates, expires: c.clock().Add(c.ttl)}
}
