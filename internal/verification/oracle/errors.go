package oracle

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies oracle failures.
type ErrorCategory string

const (
	// ErrorTimeout indicates the oracle did not answer within the deadline
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorOutage indicates the oracle is down, overloaded or unreachable
	ErrorOutage ErrorCategory = "outage"

	// ErrorBadData indicates a malformed request or an unusable answer
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorCircuitOpen indicates calls are being short-circuited after repeated failures
	ErrorCircuitOpen ErrorCategory = "circuit_open"

	// ErrorDisabled indicates no oracle is configured
	ErrorDisabled ErrorCategory = "disabled"
)

// ErrUnavailable matches every oracle failure; callers report it as
// oracle_unavailable without inspecting the category.
var ErrUnavailable = errors.New("similarity oracle unavailable")

// Error wraps an oracle failure with its category.
type Error struct {
	Category   ErrorCategory
	Message    string
	Underlying error
}

func NewError(category ErrorCategory, message string, underlying error) *Error {
	return &Error{Category: category, Message: message, Underlying: underlying}
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("oracle [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("oracle [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func (e *Error) Is(target error) bool {
	return target == ErrUnavailable
}

// Transient reports whether the failure says something about the oracle's
// health, as opposed to the request it was given.
func (e *Error) Transient() bool {
	return e.Category == ErrorTimeout || e.Category == ErrorOutage
}

// Category extracts the failure category, or "" for a nil or foreign error.
func Category(err error) ErrorCategory {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category
	}
	if err != nil {
		return ErrorOutage
	}
	return ""
}
