package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus indicates how a document was resolved.
type TransactionStatus string

// Transaction status constants.
const (
	StatusAutoPosted     TransactionStatus = "AUTO_POSTED"
	StatusPatternMatched TransactionStatus = "PATTERN_MATCHED"
	StatusUserConfirmed  TransactionStatus = "USER_CONFIRMED"
)

// Valid reports whether s belongs to the closed status set.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusAutoPosted, StatusPatternMatched, StatusUserConfirmed:
		return true
	}
	return false
}

// Transaction is the final ledger posting for one resolved document.
// It is built once and never edited; a correction produces a new one.
type Transaction struct {
	Date          time.Time         `json:"date"`
	CreatedAt     time.Time         `json:"created_at"`
	DebitAmount   decimal.Decimal   `json:"debit_amount"`
	CreditAmount  decimal.Decimal   `json:"credit_amount"`
	TDSAmount     decimal.Decimal   `json:"tds_amount"`
	ID            string            `json:"id"`
	DocumentID    string            `json:"document_id"`
	Vendor        string            `json:"vendor"`
	DebitAccount  string            `json:"debit_account"`
	CreditAccount string            `json:"credit_account"`
	TDSAccount    string            `json:"tds_account,omitempty"`
	Status        TransactionStatus `json:"status"`
	RuleApplied   string            `json:"rule_applied,omitempty"`
	Confidence    Confidence        `json:"confidence"`
}

// Balanced reports whether debit equals credit plus withholding.
func (t Transaction) Balanced() bool {
	return t.DebitAmount.Equal(t.CreditAmount.Add(t.TDSAmount))
}
