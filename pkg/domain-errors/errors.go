// Package domainerrors carries typed, code-tagged errors across service
// boundaries. Services return these; transports translate the Code into a
// status and a stable machine-readable error string.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeAlreadyOrphaned    Code = "already_orphaned"
	CodeDenied             Code = "pointer_orphaned"
	CodeInvariantViolation Code = "invariant_violation"
	CodeStorageFailure     Code = "storage_failure"
	CodeSigningFailure     Code = "signing_failure"
	CodeUnauthorized       Code = "unauthorized"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode lets other coded error types participate in HasCode.
func (e *Error) ErrorCode() Code { return e.Code }

// Coded is implemented by any error that carries a domain code.
type Coded interface {
	error
	ErrorCode() Code
}

// New returns an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap annotates err with a code and message. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain code in err's chain, or CodeInternal
// when none is present.
func CodeOf(err error) Code {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain code in err's chain is code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var coded Coded
	if !errors.As(err, &coded) {
		return false
	}
	return coded.ErrorCode() == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the message of the outermost *Error, the text of another
// coded error, or a generic message for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Error()
	}
	return "internal error"
}
