// Package apperr defines the coded errors the engine returns to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeWrongFamily         Code = "wrong_family"
	CodeForbidden           Code = "forbidden"
	CodeNotOpen             Code = "not_open"
	CodeNotAssignedToYou    Code = "not_assigned_to_you"
	CodeNotSubmitted        Code = "not_submitted"
	CodeBadStatus           Code = "bad_status"
	CodeConflict            Code = "conflict"
	CodeExchangeRuleMissing Code = "exchange_rule_missing"
	CodeKidRequired         Code = "kid_required"
	CodeRateLimited         Code = "rate_limited"
	CodeValidation          Code = "validation"
	CodeInsufficientBalance Code = "insufficient_balance"
)

// Error is a coded error that is safe to surface to the caller.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, apperr.New(code, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) *Error {
	return Errorf(CodeNotFound, "%s %s not found", entity, id)
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// is not coded (an infrastructure failure).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsClient reports whether err is a validation, authorization or state
// precondition failure that should be reported to the caller as a client error.
// Everything else is a server error.
func IsClient(err error) bool {
	return CodeOf(err) != ""
}
