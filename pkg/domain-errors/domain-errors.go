// Package domainerrors gives registry and verification failures a stable,
// transport-independent code. Handlers map codes to HTTP; metrics use them as
// labels.
package domainerrors

import "errors"

type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"   // malformed envelope
	CodeInvalidInput Code = "invalid_input" // well-formed but unacceptable value
	CodeValidation   Code = "validation_failed"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized" // caller could not be identified
	CodeForbidden    Code = "forbidden"    // caller lacks the required role
	CodeTimeout      Code = "timeout"
	CodeUnavailable  Code = "unavailable" // transient dependency failure
	CodeInternal     Code = "internal_error"
)

// Error carries a Code, a caller-safe message and the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, New(CodeConflict, ""))
// holds for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches code and msg to err. A code already present in err's chain wins,
// so the innermost classification survives re-wrapping.
func Wrap(err error, code Code, msg string) error {
	if existing, ok := CodeOf(err); ok {
		code = existing
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HasCode reports whether err's code is code.
func HasCode(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Retryable reports whether the failure is transient. Conflicts and
// authorization failures never are.
func Retryable(err error) bool {
	return HasCode(err, CodeUnavailable) || HasCode(err, CodeTimeout)
}
