package oracle

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes oracle failures.
type ErrorCategory string

const (
	ErrorTimeout     ErrorCategory = "timeout"
	ErrorOutage      ErrorCategory = "outage"
	ErrorCircuitOpen ErrorCategory = "circuit_open"
	ErrorBadData     ErrorCategory = "bad_data"
	ErrorRejected    ErrorCategory = "rejected"
)

// Error wraps an oracle failure with its category.
type Error struct {
	Category   ErrorCategory
	Message    string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("reputation oracle [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("reputation oracle [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(category ErrorCategory, msg string, underlying error) *Error {
	return &Error{Category: category, Message: msg, Underlying: underlying}
}

// CategoryOf extracts the category, or "" for foreign errors.
func CategoryOf(err error) ErrorCategory {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category
	}
	return ""
}

// tripsBreaker reports whether the failure indicates the oracle is unhealthy
// rather than a problem with one request.
func tripsBreaker(err error) bool {
	switch CategoryOf(err) {
	case ErrorTimeout, ErrorOutage:
		return true
	default:
		return false
	}
}
