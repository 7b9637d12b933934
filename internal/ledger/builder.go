// Package ledger assembles balanced ledger postings from resolved classifications.
package ledger

import (
	"fmt"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTDSAccount is the liability account credited with withheld tax.
const DefaultTDSAccount = "TDS Payable"

// BuildInput carries everything needed to post one document.
type BuildInput struct {
	Date           time.Time
	Amount         *decimal.Decimal
	DocumentID     string
	Vendor         string
	Category       string // used for the rate lookup when Classification.Category is empty
	RuleApplied    string
	Status         model.TransactionStatus
	Classification model.Classification
	Confidence     model.Confidence
}

// Builder produces immutable transactions.
type Builder struct {
	calc       *tds.Calculator
	now        func() time.Time
	newID      func() string
	tdsAccount string
}

// Option configures a Builder.
type Option func(*Builder)

// WithTDSAccount overrides the withholding liability account.
func WithTDSAccount(account string) Option {
	return func(b *Builder) {
		if account != "" {
			b.tdsAccount = account
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a builder backed by calc.
func NewBuilder(calc *tds.Calculator, opts ...Option) *Builder {
	if calc == nil {
		calc = tds.Default()
	}
	b := &Builder{
		calc:       calc,
		tdsAccount: DefaultTDSAccount,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Calculator exposes the underlying rate table.
func (b *Builder) Calculator() *tds.Calculator {
	return b.calc
}

// Build posts the document. The expense is debited gross, the vendor is
// credited net of withholding and the withheld amount goes to the TDS account.
func (b *Builder) Build(in BuildInput) (model.Transaction, error) {
	if in.Amount == nil {
		return model.Transaction{}, fmt.Errorf("%w: amount missing for document %s", common.ErrInvalidAmount, in.DocumentID)
	}
	if !in.Status.Valid() {
		return model.Transaction{}, fmt.Errorf("unknown transaction status %q", in.Status)
	}
	if in.Classification.DebitAccount == "" || in.Classification.CreditAccount == "" {
		return model.Transaction{}, fmt.Errorf("%w: debit and credit accounts are required", common.ErrDataAbsence)
	}

	category := in.Classification.Category
	if category == "" {
		category = in.Category
	}

	split, err := b.calc.Split(category, *in.Amount, in.Classification.TDSApplicable)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("document %s: %w", in.DocumentID, err)
	}

	now := b.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	txn := model.Transaction{
		ID:            b.newID(),
		DocumentID:    in.DocumentID,
		Date:          date,
		Vendor:        in.Vendor,
		DebitAccount:  in.Classification.DebitAccount,
		DebitAmount:   split.Gross,
		CreditAccount: in.Classification.CreditAccount,
		CreditAmount:  split.Net,
		TDSAmount:     split.Withheld,
		Confidence:    in.Confidence,
		Status:        in.Status,
		RuleApplied:   in.RuleApplied,
		CreatedAt:     now,
	}
	if split.Applies() {
		txn.TDSAccount = b.tdsAccount
	}

	return txn, nil
}
