// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values so transports can map a failure to a status
// without string matching. Stores should not use this package; they return
// the infrastructure facts in pkg/platform/sentinel and services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	CodeNotFound               Code = "not_found"
	CodeValidation             Code = "validation_error"
	CodeInvalidInput           Code = "invalid_input"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeConflict               Code = "conflict"
	CodeUpstreamUnavailable    Code = "upstream_unavailable"
	CodeAnchorSubmissionFailed Code = "anchor_submission_failed"
	CodeConfiguration          Code = "configuration_error"
	CodeTimeout                Code = "timeout"
	CodeUnauthorized           Code = "unauthorized"
	CodeInternal               Code = "internal_error"
)

// Error is a coded domain error. Err is optional and preserved for errors.Is/As.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a convenience alias for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsRetryable reports whether a caller may retry the failed operation.
// Upstream and consensus failures are transient; nothing retries internally.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUpstreamUnavailable, CodeAnchorSubmissionFailed, CodeTimeout:
		return true
	default:
		return false
	}
}
