package ledger

import (
	"testing"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountOf(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBuilder_Build(t *testing.T) {
	fixed := time.Date(2024, 12, 21, 9, 0, 0, 0, time.UTC)
	builder := NewBuilder(tds.Default(), WithClock(func() time.Time { return fixed }))

	tests := []struct {
		name       string
		in         BuildInput
		wantDebit  string
		wantCredit string
		wantTDS    string
		wantTDSAcc string
	}{
		{
			name: "rent with withholding",
			in: BuildInput{
				DocumentID: "doc-1",
				Vendor:     "Acme Rentals",
				Amount:     amountOf("10000"),
				Category:   "rent",
				Status:     model.StatusUserConfirmed,
				Classification: model.Classification{
					DebitAccount:  "Rent Expense",
					CreditAccount: "Acme Rentals (Payable)",
					TDSApplicable: true,
				},
			},
			wantDebit:  "10000",
			wantCredit: "9000",
			wantTDS:    "1000",
			wantTDSAcc: DefaultTDSAccount,
		},
		{
			name: "classification category wins over hint",
			in: BuildInput{
				DocumentID: "doc-2",
				Vendor:     "Payroll Co",
				Amount:     amountOf("20000"),
				Category:   "rent",
				Status:     model.StatusAutoPosted,
				Classification: model.Classification{
					DebitAccount:  "Salary Expense",
					CreditAccount: "Payroll Co (Payable)",
					Category:      "salary",
					TDSApplicable: true,
				},
			},
			wantDebit:  "20000",
			wantCredit: "19000",
			wantTDS:    "1000",
			wantTDSAcc: DefaultTDSAccount,
		},
		{
			name: "no withholding",
			in: BuildInput{
				DocumentID: "doc-3",
				Vendor:     "Premium Office Furnishings",
				Amount:     amountOf("47200"),
				Status:     model.StatusPatternMatched,
				Classification: model.Classification{
					DebitAccount:  "Office Furniture",
					CreditAccount: "Premium Office Furnishings (Payable)",
				},
			},
			wantDebit:  "47200",
			wantCredit: "47200",
			wantTDS:    "0",
		},
		{
			name: "unknown category behaves as inapplicable",
			in: BuildInput{
				DocumentID: "doc-4",
				Vendor:     "Misc Traders",
				Amount:     amountOf("1500"),
				Category:   "stationery",
				Status:     model.StatusUserConfirmed,
				Classification: model.Classification{
					DebitAccount:  "Miscellaneous Expense",
					CreditAccount: "Misc Traders (Payable)",
					TDSApplicable: true,
				},
			},
			wantDebit:  "1500",
			wantCredit: "1500",
			wantTDS:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := builder.Build(tt.in)
			require.NoError(t, err)

			assert.True(t, txn.DebitAmount.Equal(decimal.RequireFromString(tt.wantDebit)), "debit %s", txn.DebitAmount)
			assert.True(t, txn.CreditAmount.Equal(decimal.RequireFromString(tt.wantCredit)), "credit %s", txn.CreditAmount)
			assert.True(t, txn.TDSAmount.Equal(decimal.RequireFromString(tt.wantTDS)), "tds %s", txn.TDSAmount)
			assert.Equal(t, tt.wantTDSAcc, txn.TDSAccount)
			assert.True(t, txn.Balanced())
			assert.Equal(t, tt.in.Status, txn.Status)
			assert.Equal(t, fixed, txn.CreatedAt)
			assert.Equal(t, fixed, txn.Date, "missing document date falls back to creation time")
			assert.NotEmpty(t, txn.ID)
		})
	}
}

func TestBuilder_RejectsInvalidAmounts(t *testing.T) {
	builder := NewBuilder(nil)
	class := model.Classification{DebitAccount: "Rent Expense", CreditAccount: "Acme (Payable)", TDSApplicable: true}

	for _, amount := range []*decimal.Decimal{nil, amountOf("0"), amountOf("-500")} {
		_, err := builder.Build(BuildInput{
			DocumentID:     "doc",
			Amount:         amount,
			Status:         model.StatusUserConfirmed,
			Classification: class,
		})
		assert.ErrorIs(t, err, common.ErrInvalidAmount)
	}
}

func TestBuilder_RequiresAccounts(t *testing.T) {
	builder := NewBuilder(nil)
	_, err := builder.Build(BuildInput{
		DocumentID: "doc",
		Amount:     amountOf("100"),
		Status:     model.StatusUserConfirmed,
	})
	assert.ErrorIs(t, err, common.ErrDataAbsence)
}

func TestBuilder_CustomTDSAccount(t *testing.T) {
	builder := NewBuilder(tds.Default(), WithTDSAccount("TDS Payable - 194I"))
	txn, err := builder.Build(BuildInput{
		DocumentID: "doc",
		Vendor:     "Acme Rentals",
		Amount:     amountOf("12000"),
		Category:   "rent",
		Status:     model.StatusAutoPosted,
		Classification: model.Classification{
			DebitAccount:  "Rent Expense",
			CreditAccount: "Acme Rentals (Payable)",
			TDSApplicable: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "TDS Payable - 194I", txn.TDSAccount)
	assert.True(t, txn.TDSAmount.Equal(decimal.NewFromInt(1200)))
}
