package engine

import (
	"context"

	"github.com/Veraticus/autobooks/internal/model"
)

// RuleStore is the vendor rule memory consulted before scoring and updated on correction.
type RuleStore interface {
	Lookup(vendor string) (*model.Rule, bool)
	Learn(ctx context.Context, vendor string, classification model.Classification, keywords []string) (*model.Rule, error)
	RecordApplication(ctx context.Context, vendor string) error
}

// PendingStore persists escalated documents until they are corrected, and
// remembers which document ids have been decided.
// GetPending returns common.ErrNotFound for unknown ids and
// common.ErrAlreadyResolved for documents already corrected. MarkResolved must
// succeed at most once per document and SavePending must not reopen a
// resolved document. ClaimDocument succeeds once per id and returns
// common.ErrAlreadyProcessed afterwards; ReleaseDocument undoes a claim.
type PendingStore interface {
	ClaimDocument(ctx context.Context, documentID string) error
	ReleaseDocument(ctx context.Context, documentID string) error
	SavePending(ctx context.Context, doc model.PendingDocument) error
	GetPending(ctx context.Context, documentID string) (*model.PendingDocument, error)
	ListPending(ctx context.Context) ([]model.PendingDocument, error)
	MarkResolved(ctx context.Context, documentID, transactionID string) error
}

// Escalator is told about each new escalation. Implementations must return
// promptly; the document is already persisted when Escalate is called.
type Escalator interface {
	Escalate(ctx context.Context, doc model.PendingDocument)
}

// EscalatorFunc adapts a function to Escalator.
type EscalatorFunc func(ctx context.Context, doc model.PendingDocument)

// Escalate implements Escalator.
func (f EscalatorFunc) Escalate(ctx context.Context, doc model.PendingDocument) {
	f(ctx, doc)
}

// LedgerWriter receives every posted transaction.
type LedgerWriter interface {
	Append(ctx context.Context, tx model.Transaction) error
}
