package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/autobooks/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPending     = errors.New("invalid pending document")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction checks that a posting is complete and balanced.
func validateTransaction(tx model.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if tx.DocumentID == "" {
		return fmt.Errorf("%w: missing document ID", ErrInvalidTransaction)
	}
	if !tx.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, tx.Status)
	}
	if tx.DebitAccount == "" || tx.CreditAccount == "" {
		return fmt.Errorf("%w: missing account", ErrInvalidTransaction)
	}
	if !tx.DebitAmount.IsPositive() {
		return fmt.Errorf("%w: non-positive amount", ErrInvalidTransaction)
	}
	if !tx.Balanced() {
		return fmt.Errorf("%w: debit %s does not equal credit %s plus tds %s",
			ErrInvalidTransaction, tx.DebitAmount, tx.CreditAmount, tx.TDSAmount)
	}
	return nil
}

// validatePending validates an escalated document before it is stored.
func validatePending(doc model.PendingDocument) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("%w: missing document ID", ErrInvalidPending)
	}
	if doc.Reason == "" {
		return fmt.Errorf("%w: missing reason", ErrInvalidPending)
	}
	return nil
}
