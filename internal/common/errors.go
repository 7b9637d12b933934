// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Document-level error taxonomy.
var (
	// ErrDataAbsence marks a missing or unparseable field. It routes a document
	// to escalation and is never returned to callers as a failure.
	ErrDataAbsence = errors.New("required field absent")
	// ErrGatewayUnavailable marks a similarity search failure or timeout.
	// It is treated as an empty result set.
	ErrGatewayUnavailable = errors.New("similarity gateway unavailable")
	// ErrInvalidAmount is fatal for the document: no transaction is built.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPersistenceFailure means a rule could not be durably written and the
	// correction was not learned.
	ErrPersistenceFailure = errors.New("rule persistence failed")
)

// Common application errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyResolved  = errors.New("already resolved")
	ErrAlreadyProcessed = errors.New("document already processed")
	ErrMissingConfig    = errors.New("missing configuration")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrPersistenceFailure) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
