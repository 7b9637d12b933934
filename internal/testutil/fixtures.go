package testutil

import (
	"time"

	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
)

// Amount parses a decimal literal and panics on malformed input.
func Amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// DocumentBuilder assembles ExtractedFields fixtures.
type DocumentBuilder struct {
	fields model.ExtractedFields
}

// NewDocument starts a document for vendor with the given amount.
func NewDocument(id, vendor, amount string) *DocumentBuilder {
	b := &DocumentBuilder{fields: model.ExtractedFields{DocumentID: id, Vendor: vendor}}
	if amount != "" {
		b.fields.Amount = Amount(amount)
	}
	return b
}

// WithText sets the raw text.
func (b *DocumentBuilder) WithText(text string) *DocumentBuilder {
	b.fields.RawText = text
	return b
}

// WithTaxCategory sets the extracted tax category.
func (b *DocumentBuilder) WithTaxCategory(category string) *DocumentBuilder {
	b.fields.TaxCategory = category
	return b
}

// WithDate sets the document date.
func (b *DocumentBuilder) WithDate(d time.Time) *DocumentBuilder {
	b.fields.Date = &d
	return b
}

// Build returns the fields.
func (b *DocumentBuilder) Build() model.ExtractedFields {
	return b.fields
}

// AcmeRent is the canonical rent invoice used across tests.
func AcmeRent(id, amount string) model.ExtractedFields {
	return NewDocument(id, "Acme Rentals", amount).
		WithText("Monthly rent for office premises").
		WithTaxCategory("rent").
		WithDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).
		Build()
}

// AcmeCorrection is the human answer for AcmeRent.
func AcmeCorrection() model.Correction {
	return model.Correction{
		DebitAccount:  "Rent Expense",
		CreditAccount: "Acme Rentals (Payable)",
		TDSApplicable: true,
	}
}
