package errors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/metrics"
	"github.com/pricewise/pricewise/internal/observability"
	"github.com/pricewise/pricewise/internal/server/middleware"
)

// Error codes carried in envelopes and HTTP error bodies.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeTimeout             = "TIMEOUT"
	CodeExternalService     = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeDatabase            = "DATABASE_ERROR"
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeInternal            = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeInvalidInput:        http.StatusBadRequest,
	CodeValidationFailed:    http.StatusBadRequest,
	CodeNotFound:            http.StatusNotFound,
	CodeInsufficientCredits: http.StatusBadRequest,
	CodeMethodNotAllowed:    http.StatusMethodNotAllowed,
	CodeTimeout:             http.StatusGatewayTimeout,
	CodeExternalService:     http.StatusBadGateway,
	CodeServiceUnavailable:  http.StatusServiceUnavailable,
}

// New builds an envelope for code. Server-side codes carry a severity so
// they log at warn or error level.
func New(code, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)

	switch code {
	case CodeDatabase, CodeInternal, CodeConfigInvalid:
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	case CodeExternalService, CodeTimeout, CodeServiceUnavailable:
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
	}
	return envelope
}

// Wrap builds an envelope for code that records err and the request's
// correlation id.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	correlationID := extractCorrelationID(ctx)
	envelope := New(code, message).
		WithCorrelationID(correlationID).
		WithTraceID(correlationID)
	return withWrappedError(envelope, err)
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return New(CodeInvalidInput, message)
}

func NewValidationError(message string) *errors.ErrorEnvelope {
	return New(CodeValidationFailed, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return New(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return New(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return New(CodeInternal, message)
}

func NewDatabaseError(message string) *errors.ErrorEnvelope {
	return New(CodeDatabase, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return New(CodeConfigInvalid, message)
}

// NewServiceUnavailableError reports a dependency that is not configured.
func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return New(CodeServiceUnavailable, message)
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapValidationError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeValidationFailed, err, message)
}

func WrapNotFound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeNotFound, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeDatabase, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeExternalService, err, message)
}

func WrapTimeout(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeTimeout, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeConfigInvalid, err, message)
}

// extractCorrelationID gets the request id from ctx or generates one.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	return withWrappedError(New(CodeInternal, "unexpected error"), err)
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code for an error code.
// Unknown codes are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails merges envelope details and context. Details win on key
// collisions.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{}, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	statusCode := HTTPStatusFromEnvelope(envelope)

	details := ResponseDetails(envelope)
	if statusCode >= http.StatusInternalServerError {
		// wrapped errors from drivers and providers stay in the logs
		delete(details, "wrapped_error")
		if len(details) == 0 {
			details = nil
		}
	}

	logHTTPError(r, envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   details,
			RequestID: envelope.CorrelationID,
		},
	})
}

func logHTTPError(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}
	if r != nil {
		fields = append(fields, zap.String("endpoint", metrics.EndpointPattern(r)))
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(metrics.EndpointPattern(r), envelope.Code)
	}
}
