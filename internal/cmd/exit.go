package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/core"
	errwrap "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/output"
)

// ExitCodeFor maps a failed command's error to a semantic exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	if err == nil {
		return foundry.ExitCode(0)
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		switch envelope.Code {
		case errwrap.CodeConfigInvalid:
			return foundry.ExitConfigInvalid
		case errwrap.CodeExternalService, errwrap.CodeDatabase, errwrap.CodeServiceUnavailable, errwrap.CodeTimeout:
			return foundry.ExitExternalServiceUnavailable
		}
	}
	var formatErr *output.FormatError
	switch {
	case stderrors.As(err, &formatErr):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, core.ErrProfileNotFound):
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCode logs msg and err with the exit code metadata and exits. A nil
// logger writes to stderr instead.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original := underlying(envelope); original != nil {
			err = original
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is used before the CLI logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	switch envelope, ok := err.(*errors.ErrorEnvelope); {
	case ok:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s (correlation: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original := underlying(envelope); original != nil {
			fmt.Fprintf(os.Stderr, "Underlying error: %v\n", original)
		}
	case err != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

func underlying(envelope *errors.ErrorEnvelope) error {
	if envelope == nil || envelope.Original == nil {
		return nil
	}
	if original, ok := envelope.Original.(error); ok {
		return original
	}
	return nil
}
