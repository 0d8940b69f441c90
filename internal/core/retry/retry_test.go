package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func statusErr(status int) error {
	return NewStatusError("test", status, http.StatusText(status))
}

func TestBackoffGrowthIsCapped(t *testing.T) {
	opts := Options{InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 10 * time.Second}

	var got []time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		got = append(got, Backoff(opts, attempt))
	}

	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, got)
}

func TestDoSleepsWithBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, statusErr(http.StatusServiceUnavailable)
	}, Options{MaxAttempts: 6, Sleep: rec.sleep})

	require.Error(t, err)
	require.Equal(t, 6, calls)
	require.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}, rec.delays)
}

func TestDoDoesNotRetryClientError(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", statusErr(http.StatusBadRequest)
	}, Options{Sleep: rec.sleep})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)

	var tagged *Error
	require.ErrorAs(t, err, &tagged)
	require.Equal(t, KindClientError, tagged.Kind)
}

func TestDoDoesNotRetryRequestTimeoutStatus(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", statusErr(http.StatusRequestTimeout)
	}, Options{Sleep: rec.sleep})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, rec.delays)

	var exhausted *ExhaustedError
	require.False(t, errors.As(err, &exhausted))

	var tagged *Error
	require.ErrorAs(t, err, &tagged)
	require.Equal(t, KindClientError, tagged.Kind)
	require.Equal(t, http.StatusRequestTimeout, tagged.Status)
}

func TestDoRetriesServiceUnavailable(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	var retried []int
	result, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", statusErr(http.StatusServiceUnavailable)
		}
		return "ok", nil
	}, Options{
		Sleep:   rec.sleep,
		OnRetry: func(attempt int, err error) { retried = append(retried, attempt) },
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)
}

func TestDoExhaustionSurfacesLastError(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	var last error
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		last = &Error{Kind: KindConnection, Op: "dial", Err: syscall.ECONNREFUSED}
		return 0, last
	}, Options{MaxAttempts: 3, Sleep: rec.sleep})

	require.Equal(t, 3, calls)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, last)
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestDoDoesNotRetryUnknownErrors(t *testing.T) {
	calls := 0
	plain := errors.New("bad input")
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, plain
	}, Options{Sleep: (&sleepRecorder{}).sleep})

	require.Equal(t, 1, calls)
	require.Same(t, plain, err)
}

func TestDoStopsWhenParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, statusErr(http.StatusBadGateway)
	}, Options{Sleep: (&sleepRecorder{}).sleep})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoHonorsRetryAfterWithinMaxDelay(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &Error{Kind: KindRateLimited, Status: 429, RetryAfter: 5 * time.Second}
		}
		return 1, nil
	}, Options{Sleep: rec.sleep})

	require.NoError(t, err)
	require.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestDoWithTimeoutIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := DoWithTimeout(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	}, Options{})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, 20*time.Millisecond, timeout.Timeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestDoWithTimeoutCancelsAttempt(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := DoWithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	}, Options{})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("attempt context was not cancelled")
	}
}

func TestDoWithTimeoutReturnsResult(t *testing.T) {
	value, err := DoWithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "fast", nil
	}, Options{})
	require.NoError(t, err)
	require.Equal(t, "fast", value)
}

func TestDoWithFallback(t *testing.T) {
	primaryCalls := 0
	fallbackCalls := 0
	value, err := DoWithFallback(context.Background(),
		func(context.Context) (string, error) {
			primaryCalls++
			return "", statusErr(http.StatusInternalServerError)
		},
		func(context.Context) (string, error) {
			fallbackCalls++
			return "mock", nil
		},
		Options{MaxAttempts: 2, Sleep: (&sleepRecorder{}).sleep},
	)

	require.NoError(t, err)
	require.Equal(t, "mock", value)
	require.Equal(t, 2, primaryCalls)
	require.Equal(t, 1, fallbackCalls)
}

func TestDoChainFirstSuccess(t *testing.T) {
	attempts := map[string]int{}
	chain := []Named[string]{
		{Name: "a", Op: func(context.Context) (string, error) {
			attempts["a"]++
			return "", statusErr(http.StatusServiceUnavailable)
		}},
		{Name: "b", Op: func(context.Context) (string, error) {
			attempts["b"]++
			return "from-b", nil
		}},
		{Name: "c", Op: func(context.Context) (string, error) {
			attempts["c"]++
			return "from-c", nil
		}},
	}

	value, err := DoChain(context.Background(), chain, Options{MaxAttempts: 5, Sleep: (&sleepRecorder{}).sleep})
	require.NoError(t, err)
	require.Equal(t, "from-b", value)
	require.Equal(t, map[string]int{"a": 2, "b": 1}, attempts)
}

func TestDoChainAllFail(t *testing.T) {
	last := statusErr(http.StatusBadGateway)
	chain := []Named[int]{
		{Name: "a", Op: func(context.Context) (int, error) { return 0, statusErr(http.StatusBadRequest) }},
		{Name: "b", Op: func(context.Context) (int, error) { return 0, last }},
	}

	_, err := DoChain(context.Background(), chain, Options{Sleep: (&sleepRecorder{}).sleep})
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Equal(t, []string{"a", "b"}, chainErr.Tried)
	require.ErrorIs(t, err, last)
}

func TestDoChainEmpty(t *testing.T) {
	_, err := DoChain[int](context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrEmptyChain)
}

func TestFromStatusRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	tagged := FromStatus("quota", resp, []byte(`{"error":"slow down"}`))
	require.Equal(t, KindRateLimited, tagged.Kind)
	require.Equal(t, http.StatusTooManyRequests, tagged.Status)
	require.Equal(t, 7*time.Second, tagged.RetryAfter)
	assert.Contains(t, tagged.Error(), "slow down")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "refused", err: syscall.ECONNREFUSED, want: KindConnection},
		{name: "server", err: statusErr(http.StatusBadGateway), want: KindServerError},
		{name: "client", err: statusErr(http.StatusNotFound), want: KindClientError},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err).Kind)
		})
	}
}
