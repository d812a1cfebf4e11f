package result

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/CareForge/internal/domain"
)

// Kind classifies a failure so callers can react without parsing codes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindUnexpected   Kind = "unexpected"
	KindCancelled    Kind = "cancelled"
)

// Well-known codes produced by the core itself.
const (
	CodeUnexpected          = "UNEXPECTED"
	CodeCancelled           = "CANCELLED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnregisteredRequest = "UNREGISTERED_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
)

// Error is the structured failure carried by a Result.
// Details holds the individual errors of an aggregated validation failure,
// in the order they were produced.
type Error struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Kind    Kind    `json:"kind,omitempty"`
	Details []Error `json:"details,omitempty"`
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is reports whether target is an Error with the same code.
func (e Error) Is(target error) bool {
	var t Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Errors flattens the error into its individual entries. A non-aggregated
// error yields itself.
func (e Error) Errors() []Error {
	if len(e.Details) > 0 {
		return e.Details
	}
	return []Error{e}
}

// Validation builds a validation error.
func Validation(code, message string) Error {
	return Error{Code: code, Message: message, Kind: KindValidation}
}

// NotFound builds a not-found error.
func NotFound(code, message string) Error {
	return Error{Code: code, Message: message, Kind: KindNotFound}
}

// Conflict builds a conflict error.
func Conflict(code, message string) Error {
	return Error{Code: code, Message: message, Kind: KindConflict}
}

// Unauthorized builds an unauthorized error.
func Unauthorized(code, message string) Error {
	return Error{Code: code, Message: message, Kind: KindUnauthorized}
}

// Unexpected builds an unexpected error.
func Unexpected(code, message string) Error {
	return Error{Code: code, Message: message, Kind: KindUnexpected}
}

// Cancelled is the error reported when the caller aborted the operation.
func Cancelled(cause error) Error {
	msg := "operation cancelled"
	if cause != nil {
		msg = cause.Error()
	}
	return Error{Code: CodeCancelled, Message: msg, Kind: KindCancelled}
}

// Aggregate merges validation errors. A single error is returned unchanged
// apart from its kind; several are wrapped under CodeValidationFailed.
func Aggregate(errs []Error) Error {
	if len(errs) == 1 {
		e := errs[0]
		e.Kind = KindValidation
		return e
	}
	msgs := make([]string, 0, len(errs))
	details := make([]Error, 0, len(errs))
	for _, e := range errs {
		e.Kind = KindValidation
		details = append(details, e)
		msgs = append(msgs, e.Error())
	}
	return Error{
		Code:    CodeValidationFailed,
		Message: strings.Join(msgs, "; "),
		Kind:    KindValidation,
		Details: details,
	}
}

// FromError maps a Go error returned by a collaborator onto the taxonomy.
// An Error already inside the chain is returned as-is.
func FromError(err error) Error {
	if err == nil {
		return Unexpected(CodeUnexpected, "nil error")
	}
	var re Error
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Cancelled(err)
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return Conflict(CodeConflict, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return Validation(CodeValidationFailed, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, domain.ErrUnauthorized):
		return Unauthorized(CodeUnauthorized, err.Error())
	default:
		return Unexpected(CodeUnexpected, err.Error())
	}
}

// InvalidStateError is the panic value raised by Value on a failed Result.
type InvalidStateError struct {
	Err Error
}

// ErrInvalidState matches any InvalidStateError via errors.Is.
var ErrInvalidState = errors.New("result: invalid state")

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("result: Value called on failure outcome (%s)", e.Err.Error())
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }
