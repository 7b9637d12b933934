package tds

import (
	"testing"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_Split(t *testing.T) {
	calc := Default()

	tests := []struct {
		name         string
		category     string
		amount       string
		wantWithheld string
		wantNet      string
		applicable   bool
	}{
		{name: "rent withholds ten percent", category: "rent", amount: "10000", applicable: true, wantWithheld: "1000", wantNet: "9000"},
		{name: "salary withholds five percent", category: "Salary", amount: "12000", applicable: true, wantWithheld: "600", wantNet: "11400"},
		{name: "professional withholds ten percent", category: "professional", amount: "2500.50", applicable: true, wantWithheld: "250.05", wantNet: "2250.45"},
		{name: "contract withholds five percent", category: "contract", amount: "333.33", applicable: true, wantWithheld: "16.67", wantNet: "316.66"},
		{name: "unknown category behaves as inapplicable", category: "furniture", amount: "47200", applicable: true, wantWithheld: "0", wantNet: "47200"},
		{name: "trailing zero cents are accepted", category: "rent", amount: "10000.500", applicable: true, wantWithheld: "1000.05", wantNet: "9000.45"},
		{name: "not applicable ignores category", category: "rent", amount: "10000", applicable: false, wantWithheld: "0", wantNet: "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := calc.Split(tt.category, decimal.RequireFromString(tt.amount), tt.applicable)
			require.NoError(t, err)

			assert.True(t, split.Withheld.Equal(decimal.RequireFromString(tt.wantWithheld)), "withheld %s", split.Withheld)
			assert.True(t, split.Net.Equal(decimal.RequireFromString(tt.wantNet)), "net %s", split.Net)
			assert.True(t, split.Gross.Equal(split.Net.Add(split.Withheld)), "split must balance")
		})
	}
}

func TestCalculator_SplitBalancesForManyAmounts(t *testing.T) {
	calc := Default()
	for _, category := range []string{"rent", "salary", "professional", "consultancy", "contract", "other"} {
		for cents := int64(1); cents < 100000; cents += 997 {
			amount := decimal.New(cents, -2)
			split, err := calc.Split(category, amount, true)
			require.NoError(t, err)
			require.True(t, split.Gross.Equal(split.Net.Add(split.Withheld)),
				"category %s amount %s does not balance", category, amount)
			want := amount.Mul(calc.Rate(category)).Div(decimal.NewFromInt(100)).Round(2)
			require.True(t, split.Withheld.Equal(want), "category %s amount %s: got %s want %s",
				category, amount, split.Withheld, want)
		}
	}
}

func TestCalculator_RejectsUnpostableAmount(t *testing.T) {
	calc := Default()
	for _, amount := range []string{"0", "-500", "10000.005", "0.001"} {
		_, err := calc.Split("rent", decimal.RequireFromString(amount), true)
		assert.ErrorIs(t, err, common.ErrInvalidAmount)
	}
}

func TestNewCalculator_Overrides(t *testing.T) {
	calc, err := NewCalculator(map[string]decimal.Decimal{"Rent": decimal.NewFromInt(12)})
	require.NoError(t, err)

	assert.True(t, calc.Rate("rent").Equal(decimal.NewFromInt(12)))
	assert.True(t, calc.Rate("salary").IsZero())
	assert.Equal(t, []string{"rent"}, calc.Categories())

	_, err = NewCalculator(map[string]decimal.Decimal{"rent": decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
