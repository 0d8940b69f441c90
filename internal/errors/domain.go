package errors

import (
	"context"
	stderrors "errors"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/pricewise/pricewise/internal/core/retry"
)

// WrapOutbound converts a failed outbound call into an envelope using its
// retry classification.
func WrapOutbound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	var timeout *retry.TimeoutError
	if stderrors.As(err, &timeout) || stderrors.Is(err, context.DeadlineExceeded) {
		return WrapTimeout(ctx, err, message)
	}

	switch retry.Classify(err).Kind {
	case retry.KindTimeout:
		return WrapTimeout(ctx, err, message)
	case retry.KindClientError:
		return WrapInvalidInput(ctx, err, message)
	case retry.KindRateLimited, retry.KindServerError, retry.KindConnection:
		return WrapExternalService(ctx, err, message)
	default:
		return WrapInternal(ctx, err, message)
	}
}

// WithDetails attaches caller-facing details to an envelope.
func WithDetails(envelope *errors.ErrorEnvelope, details map[string]interface{}) *errors.ErrorEnvelope {
	if envelope == nil || len(details) == 0 {
		return envelope
	}
	updated, err := envelope.WithContext(details)
	if err != nil {
		return envelope
	}
	return updated
}
