package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
)

// ClaimDocument records that documentID is being decided. Each id can be
// claimed once; later claims fail with common.ErrAlreadyProcessed.
func (s *SQLiteStorage) ClaimDocument(ctx context.Context, documentID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_documents (document_id, claimed_at)
		VALUES (?, ?)
		ON CONFLICT(document_id) DO NOTHING`,
		documentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to claim document %s: %w", documentID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim of document %s: %w", documentID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrAlreadyProcessed, documentID)
	}
	return nil
}

// ReleaseDocument forgets a claim whose decision did not complete, so the
// document can be submitted again.
func (s *SQLiteStorage) ReleaseDocument(ctx context.Context, documentID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_documents WHERE document_id = ?`, documentID,
	); err != nil {
		return fmt.Errorf("failed to release document %s: %w", documentID, err)
	}
	return nil
}
