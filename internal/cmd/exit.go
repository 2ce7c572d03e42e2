package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/observability"
)

// Replaced in tests.
var (
	osExit               = os.Exit
	exitStderr io.Writer = os.Stderr
)

// ExitCodeFor maps a command error to a foundry exit code. Reddit outages,
// throttling and credential failures report the external service as
// unavailable; configuration envelopes report an invalid config.
func ExitCodeFor(err error) foundry.ExitCode {
	var classified *core.ClassifiedError
	if stderrors.As(err, &classified) {
		switch classified.Type {
		case core.ErrorAPIUnavailable, core.ErrorNetwork, core.ErrorRateLimited, core.ErrorAuthFailure:
			return foundry.ExitExternalServiceUnavailable
		}
		return foundry.ExitFailure
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope.Code == "CONFIG_INVALID" {
		return foundry.ExitConfigInvalid
	}
	return foundry.ExitFailure
}

// Fail reports err on the active logger, or stderr before one exists, and
// exits with the code chosen by ExitCodeFor.
func Fail(err error) {
	ExitWithCode(observability.Logger(), ExitCodeFor(err), "Command failed", err)
}

// ExitWithCode logs err with the foundry metadata for exitCode and exits.
// logger may be nil for failures before logging is initialized.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	code := int(exitCode)
	info, known := foundry.GetExitCodeInfo(exitCode)
	if known {
		code = info.Code
	}

	if logger != nil {
		fields := []zap.Field{zap.Int("exit_code", code)}
		if known {
			fields = append(fields,
				zap.String("exit_name", info.Name),
				zap.String("exit_category", info.Category))
		}
		logger.Error(msg, append(fields, failureFields(err)...)...)
	} else {
		writeFailure(exitStderr, msg, err)
		if known {
			_, _ = fmt.Fprintf(exitStderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		} else {
			_, _ = fmt.Fprintf(exitStderr, "Exit Code: %d\n", code)
		}
	}

	osExit(code)
}

func failureFields(err error) []zap.Field {
	var classified *core.ClassifiedError
	if stderrors.As(err, &classified) {
		return []zap.Field{
			zap.String("error_type", string(classified.Type)),
			zap.String("username", classified.Username),
			zap.String("user_message", classified.Message),
			zap.Error(err),
		}
	}

	envelope, ok := err.(*errors.ErrorEnvelope)
	if !ok {
		return []zap.Field{zap.Error(err)}
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if original, ok := envelope.Original.(error); ok {
		err = original
	}
	return append(fields, zap.Error(err))
}

// writeFailure prints the user-facing line for err. Classified collection
// errors print their fixed message instead of the raw cause.
func writeFailure(w io.Writer, msg string, err error) {
	var classified *core.ClassifiedError
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &classified):
		_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, classified.Type, classified.Message)
	default:
		if envelope, ok := err.(*errors.ErrorEnvelope); ok {
			_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
			if original, ok := envelope.Original.(error); ok {
				_, _ = fmt.Fprintf(w, "Underlying error: %v\n", original)
			}
			return
		}
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
}
