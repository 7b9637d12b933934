package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
)

const (
	pendingOpen     = "open"
	pendingResolved = "resolved"
)

// SavePending stores an escalated document. Saving an open id again replaces
// it; a resolved document is never reopened and yields
// common.ErrAlreadyResolved.
func (s *SQLiteStorage) SavePending(ctx context.Context, doc model.PendingDocument) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePending(doc); err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode pending document: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_documents (document_id, vendor, payload, reason, confidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			vendor = excluded.vendor,
			payload = excluded.payload,
			reason = excluded.reason,
			confidence = excluded.confidence,
			created_at = excluded.created_at
		WHERE pending_documents.status = ?`,
		doc.DocumentID, doc.Fields.Vendor, string(payload), string(doc.Reason),
		int(doc.Candidate.Confidence), pendingOpen, doc.CreatedAt.UTC(), pendingOpen)
	if err != nil {
		return fmt.Errorf("failed to save pending document %s: %w", doc.DocumentID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check save of pending document %s: %w", doc.DocumentID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrAlreadyResolved, doc.DocumentID)
	}
	return nil
}

// GetPending returns an open escalation.
func (s *SQLiteStorage) GetPending(ctx context.Context, documentID string) (*model.PendingDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	var payload, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, status FROM pending_documents WHERE document_id = ?`, documentID,
	).Scan(&payload, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pending document %s", common.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending document %s: %w", documentID, err)
	}
	if status != pendingOpen {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyResolved, documentID)
	}

	return decodePending(payload)
}

// ListPending returns open escalations, oldest first.
func (s *SQLiteStorage) ListPending(ctx context.Context) ([]model.PendingDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM pending_documents
		WHERE status = ?
		ORDER BY created_at, document_id`, pendingOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.PendingDocument
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan pending document: %w", err)
		}
		doc, err := decodePending(payload)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending documents: %w", err)
	}
	return docs, nil
}

// MarkResolved closes an escalation. Only the first call for a document succeeds.
func (s *SQLiteStorage) MarkResolved(ctx context.Context, documentID, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_documents
		SET status = ?, transaction_id = ?, resolved_at = ?
		WHERE document_id = ? AND status = ?`,
		pendingResolved, transactionID, time.Now().UTC(), documentID, pendingOpen)
	if err != nil {
		return fmt.Errorf("failed to resolve pending document %s: %w", documentID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolution of %s: %w", documentID, err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_documents WHERE document_id = ?`, documentID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up pending document %s: %w", documentID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: pending document %s", common.ErrNotFound, documentID)
	}
	return fmt.Errorf("%w: %s", common.ErrAlreadyResolved, documentID)
}

// ResolvedTransaction returns the transaction id recorded for a resolved document.
func (s *SQLiteStorage) ResolvedTransaction(ctx context.Context, documentID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	var txID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT transaction_id FROM pending_documents WHERE document_id = ? AND status = ?`,
		documentID, pendingResolved,
	).Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: resolved document %s", common.ErrNotFound, documentID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get resolution of %s: %w", documentID, err)
	}
	return txID.String, nil
}

func decodePending(payload string) (*model.PendingDocument, error) {
	var doc model.PendingDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode pending document: %w", err)
	}
	return &doc, nil
}
