package metrics

import (
	"strconv"
)

// Error metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordError counts an error response by code and HTTP status.
func RecordError(errorCode string, httpStatus int) {
	counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	counter(PanicsTotalName, 1, nil)
}

// RecordErrorByEndpoint counts an error against the endpoint pattern that
// produced it. Callers pass a normalized pattern, not the raw path, so user
// and payment ids do not explode label cardinality.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}
