// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExtractedFields is the unvalidated output of the upstream extraction stage.
// Any field may be absent; nothing here is guaranteed to be correct.
type ExtractedFields struct {
	Date        *time.Time       `json:"date,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	TaxPercent  *decimal.Decimal `json:"tax_percent,omitempty"`
	DocumentID  string           `json:"document_id"`
	Vendor      string           `json:"vendor,omitempty"`
	TaxCategory string           `json:"tax_category,omitempty"` // rent, salary, professional, consultancy, contract
	RawText     string           `json:"raw_text,omitempty"`
	Source      string           `json:"source,omitempty"`
}

// VendorKey returns the normalized vendor identity used to index rules.
func (f ExtractedFields) VendorKey() string {
	return NormalizeVendor(f.Vendor)
}

// HasVendor reports whether a usable vendor name was extracted.
func (f ExtractedFields) HasVendor() bool {
	return f.VendorKey() != ""
}

// HasAmount reports whether an amount was extracted at all.
func (f ExtractedFields) HasAmount() bool {
	return f.Amount != nil
}

// PostableAmount reports whether d is positive and fits in whole cents.
func PostableAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(2))
}

// NormalizeVendor folds case and collapses whitespace.
func NormalizeVendor(vendor string) string {
	return strings.Join(strings.Fields(strings.ToLower(vendor)), " ")
}
