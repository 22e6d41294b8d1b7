package storage

import (
	"context"
	"errors"

	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/sentinel"
)

// Translate maps a store error onto the domain error returned to callers.
// what names the missing entity in not-found messages. Errors that already
// carry a domain code pass through untouched.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var coded dErrors.Coded
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "persisted "+what+" is inconsistent")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "storage operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "storage failure")
	}
}
