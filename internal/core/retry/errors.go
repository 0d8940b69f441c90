package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Kind is the normalized class of an outbound call failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindRateLimited Kind = "rate_limited"
	KindServerError Kind = "server_error"
	KindClientError Kind = "client_error"
	KindUnknown     Kind = "unknown"
)

// Error is the tagged failure produced at the transport boundary. Retry
// decisions match on Kind and Status only.
type Error struct {
	Kind       Kind
	Op         string
	Status     int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// TimeoutError is returned when the overall deadline of DoWithTimeout fired.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timeout after %s", e.Timeout)
}

// ChainError is returned when every link of a chain failed.
type ChainError struct {
	Tried []string
	Err   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("all %d operations in chain failed, last error: %v", len(e.Tried), e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// ErrEmptyChain is returned by DoChain when no operations were provided.
var ErrEmptyChain = errors.New("retry chain has no operations")

// FromStatus classifies a non-2xx HTTP response. body may be nil.
func FromStatus(op string, resp *http.Response, body []byte) *Error {
	if resp == nil {
		return &Error{Kind: KindUnknown, Op: op, Message: "no response"}
	}

	e := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Op:      op,
		Status:  resp.StatusCode,
		Message: summarizeBody(body),
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		e.RetryAfter = retryAfterHeader(resp)
	}
	return e
}

// FromTransport classifies an error returned by an HTTP client or dialer.
func FromTransport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged
	}
	return &Error{Kind: inferKind(err), Op: op, Err: err}
}

// Classify returns the tagged form of any error. Untagged errors are
// inferred from context, net and syscall errors.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged
	}
	return &Error{Kind: inferKind(err), Err: err}
}

// NewStatusError tags an error with an HTTP status when no response is at
// hand, for example when an SDK reports the status itself.
func NewStatusError(op string, status int, message string) *Error {
	return &Error{Kind: kindForStatus(status), Op: op, Status: status, Message: message}
}

// kindForStatus tags every 4xx except 429 as a client error, 408 included,
// so Do never retries them.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindClientError
	default:
		return KindUnknown
	}
}

func inferKind(err error) Kind {
	// An aborted attempt counts as a timeout; the parent context check in Do
	// stops retries when the caller itself cancelled.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	return KindUnknown
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := time.ParseDuration(value + "s"); err == nil && seconds >= 0 {
		return seconds
	}
	if parsed, err := http.ParseTime(value); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait
		}
	}
	return 0
}

func summarizeBody(body []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	return text
}
