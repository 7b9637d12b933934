// Package tds computes Tax Deducted at Source withholding splits.
package tds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DefaultRates returns the default withholding table in percent.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"rent":         decimal.NewFromInt(10),
		"salary":       decimal.NewFromInt(5),
		"professional": decimal.NewFromInt(10),
		"consultancy":  decimal.NewFromInt(10),
		"contract":     decimal.NewFromInt(5),
	}
}

// Split is the result of applying withholding to a gross amount.
type Split struct {
	Gross    decimal.Decimal
	Net      decimal.Decimal
	Withheld decimal.Decimal
	Rate     decimal.Decimal
}

// Applies reports whether anything was withheld.
func (s Split) Applies() bool {
	return s.Withheld.IsPositive()
}

// Calculator maps an expense category and amount to a withholding split.
// It is immutable after construction and safe for concurrent use.
type Calculator struct {
	rates map[string]decimal.Decimal
}

// NewCalculator creates a calculator from a percent rate table.
// Category names are matched case-insensitively.
func NewCalculator(rates map[string]decimal.Decimal) (*Calculator, error) {
	table := make(map[string]decimal.Decimal, len(rates))
	for category, rate := range rates {
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: tds rate for %q must be within 0-100, got %s",
				common.ErrInvalidConfig, category, rate)
		}
		table[strings.ToLower(strings.TrimSpace(category))] = rate
	}
	return &Calculator{rates: table}, nil
}

// Default returns a calculator using DefaultRates.
func Default() *Calculator {
	c, _ := NewCalculator(DefaultRates())
	return c
}

// Rate returns the percent rate for a category; unknown categories yield zero.
func (c *Calculator) Rate(category string) decimal.Decimal {
	rate, ok := c.rates[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return decimal.Zero
	}
	return rate
}

// Withholds reports whether the category carries a non-zero rate.
func (c *Calculator) Withholds(category string) bool {
	return c.Rate(category).IsPositive()
}

// Categories lists the configured categories in sorted order.
func (c *Calculator) Categories() []string {
	out := make([]string, 0, len(c.rates))
	for category := range c.rates {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Split computes the withholding for amount, which must be positive and in
// whole cents. When applicable is false, or the category is unknown, nothing
// is withheld. The net amount is derived by subtraction so
// Gross == Net + Withheld always holds exactly.
func (c *Calculator) Split(category string, amount decimal.Decimal, applicable bool) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, fmt.Errorf("%w: amount must be positive, got %s", common.ErrInvalidAmount, amount)
	}
	if !model.PostableAmount(amount) {
		return Split{}, fmt.Errorf("%w: amount %s has fractional cents", common.ErrInvalidAmount, amount)
	}

	gross := amount
	split := Split{Gross: gross, Net: gross, Withheld: decimal.Zero, Rate: decimal.Zero}
	if !applicable {
		return split, nil
	}

	rate := c.Rate(category)
	if !rate.IsPositive() {
		return split, nil
	}

	withheld := gross.Mul(rate).Div(hundred).Round(2)
	split.Rate = rate
	split.Withheld = withheld
	split.Net = gross.Sub(withheld)
	return split, nil
}
