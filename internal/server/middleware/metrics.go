package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/observability"
)

// HTTP metric names
const (
	httpRequestsTotal     = "http_requests_total"
	httpRequestDuration   = "http_request_duration_ms"
	httpRequestSizeBytes  = "http_request_size_bytes"
	httpResponseSizeBytes = "http_response_size_bytes"
	httpErrorsTotal       = "http_errors_total"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestMetrics emits request count, duration, sizes and error counters
// labelled by endpoint pattern, then logs the request. Probe and scrape
// traffic logs at debug so it does not drown payment traffic.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := metrics.EndpointPattern(r)
		status := strconv.Itoa(wrapped.statusCode)
		sys := observability.TelemetrySystem

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}
		_ = sys.Counter(httpRequestsTotal, 1, labels)
		_ = sys.Histogram(httpRequestDuration, duration, labels)
		_ = sys.Gauge(httpRequestSizeBytes, float64(requestSize), sizeLabels)
		_ = sys.Gauge(httpResponseSizeBytes, float64(wrapped.bytesWritten), sizeLabels)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
			}
			_ = sys.Counter(httpErrorsTotal, 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType,
			})
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", wrapped.bytesWritten),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if isProbe(endpoint) {
			logger.Debug("HTTP request completed", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}

func isProbe(endpoint string) bool {
	return endpoint == "/metrics" || strings.HasPrefix(endpoint, "/health")
}
