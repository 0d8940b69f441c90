// Package retry runs outbound operations with exponential backoff. Failures
// are matched on the normalized Error classification, never on message text.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0

	chainMaxAttempts = 2
)

// DefaultRetryableKinds are retried when no kinds are configured.
var DefaultRetryableKinds = []Kind{KindTimeout, KindConnection, KindRateLimited}

// DefaultRetryableStatuses are retried when no statuses are configured.
var DefaultRetryableStatuses = []int{429, 500, 502, 503, 504}

// Options configures a retrying call. Zero fields take the defaults.
type Options struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	RetryableKinds    []Kind
	RetryableStatuses []int

	// OnRetry is called after the backoff delay and before the next attempt.
	// attempt is the number of the attempt that failed.
	OnRetry func(attempt int, err error)

	// Sleep waits between attempts. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Named is one link of a chain.
type Named[T any] struct {
	Name string
	Op   func(ctx context.Context) (T, error)
}

func (o Options) normalize() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.RetryableKinds == nil {
		o.RetryableKinds = DefaultRetryableKinds
	}
	if o.RetryableStatuses == nil {
		o.RetryableStatuses = DefaultRetryableStatuses
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// Backoff returns the delay before the attempt following the given failed
// attempt: min(initial * multiplier^(attempt-1), max).
func Backoff(opts Options, attempt int) time.Duration {
	opts = opts.normalize()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1))
	if delay > float64(opts.MaxDelay) || math.IsInf(delay, 0) {
		return opts.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds, fails permanently or attempts run out.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.normalize()

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		classified := Classify(err)
		if classified.Kind == KindClientError || !opts.retryable(classified) {
			return zero, err
		}
		if attempt >= opts.MaxAttempts {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := Backoff(opts, attempt)
		if classified.RetryAfter > delay {
			delay = min(classified.RetryAfter, opts.MaxDelay)
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return zero, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
	}
}

// DoWithTimeout runs op under Do with an overall deadline. When the deadline
// fires the in-flight attempt's context is cancelled and a *TimeoutError is
// returned, even if op does not observe its context.
func DoWithTimeout[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return Do(ctx, op, opts)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := Do(deadlineCtx, op, opts)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{Timeout: timeout}
		}
		return out.value, out.err
	case <-deadlineCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Timeout: timeout}
	}
}

// DoWithFallback runs primary under Do and, if it finally fails, fallback
// once without retry.
func DoWithFallback[T any](ctx context.Context, primary, fallback func(ctx context.Context) (T, error), opts Options) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := Do(ctx, primary, opts)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		var zero T
		return zero, ctxErr
	}
	return fallback(ctx)
}

// DoChain tries each link in order with at most two attempts per link and
// returns the first success.
func DoChain[T any](ctx context.Context, chain []Named[T], opts Options) (T, error) {
	var zero T
	if len(chain) == 0 {
		return zero, ErrEmptyChain
	}
	if ctx == nil {
		ctx = context.Background()
	}

	linkOpts := opts
	if linkOpts.MaxAttempts < 1 || linkOpts.MaxAttempts > chainMaxAttempts {
		linkOpts.MaxAttempts = chainMaxAttempts
	}

	tried := make([]string, 0, len(chain))
	var lastErr error
	for _, link := range chain {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		tried = append(tried, link.Name)
		result, err := Do(ctx, link.Op, linkOpts)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return zero, &ChainError{Tried: tried, Err: lastErr}
}

func (o Options) retryable(err *Error) bool {
	for _, kind := range o.RetryableKinds {
		if kind == err.Kind {
			return true
		}
	}
	if err.Status == 0 {
		return false
	}
	for _, status := range o.RetryableStatuses {
		if status == err.Status {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
