package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscalationReason explains why a document needs a human.
type EscalationReason string

// Escalation reasons.
const (
	ReasonLowConfidence  EscalationReason = "LOW_CONFIDENCE"
	ReasonNoPatternMatch EscalationReason = "NO_PATTERN_MATCH"
	ReasonMissingData    EscalationReason = "MISSING_DATA"
)

// PendingDocument is a suspended escalation awaiting exactly one correction.
// It is plain data so it can be persisted and resumed after a restart.
type PendingDocument struct {
	CreatedAt  time.Time        `json:"created_at"`
	Fields     ExtractedFields  `json:"fields"`
	Candidate  ScoredCandidate  `json:"candidate"`
	DocumentID string           `json:"document_id"`
	Reason     EscalationReason `json:"reason"`
}

// Correction is the human-supplied classification for an escalated document.
type Correction struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"` // only honored when the document had no amount
	Vendor        string           `json:"vendor,omitempty"` // only honored when the document had no vendor
	DebitAccount  string           `json:"debit_account"`
	CreditAccount string           `json:"credit_account"`
	Category      string           `json:"category,omitempty"`
	TDSApplicable bool             `json:"tds_applicable"`
}

// Classification converts the correction into a classification.
func (c Correction) Classification() Classification {
	return Classification{
		DebitAccount:  c.DebitAccount,
		CreditAccount: c.CreditAccount,
		Category:      c.Category,
		TDSApplicable: c.TDSApplicable,
	}
}
