package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/config"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
	apperrors "github.com/ossanalytics/ossanalytics/internal/errors"
)

// ExitWithCode logs err with foundry exit code metadata and exits. logger may
// be nil before logging is initialized.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID))
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr writes the failure to stderr and exits. Used before the
// logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

// ExitCodeFor picks the foundry exit code for a command failure.
func ExitCodeFor(err error) foundry.ExitCode {
	var fetchErr *fetch.FetchError
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		return 0
	case stderrors.Is(err, os.ErrNotExist):
		return foundry.ExitFileNotFound
	case stderrors.Is(err, config.ErrDuplicatePackage):
		return foundry.ExitConfigInvalid
	case stderrors.As(err, &fetchErr), stderrors.Is(err, context.DeadlineExceeded):
		return foundry.ExitExternalServiceUnavailable
	case stderrors.As(err, &envelope):
		switch envelope.Code {
		case apperrors.CodeConfigInvalid:
			return foundry.ExitConfigInvalid
		case apperrors.CodeExternalService, apperrors.CodeRateLimited, apperrors.CodeTimeout:
			return foundry.ExitExternalServiceUnavailable
		}
	}
	return foundry.ExitFailure
}
