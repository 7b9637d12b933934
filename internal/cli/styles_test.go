package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Vendor", "Count"}, [][]string{
		{"acme rentals", "3"},
		{"initech", "12"},
	})
	assert.Contains(t, out, "Vendor")
	assert.Contains(t, out, "acme rentals")
	assert.Contains(t, out, "12")
}

func TestRenderBatchSummary(t *testing.T) {
	out := RenderBatchSummary(engine.BatchSummary{AutoPosted: 4, Escalated: 2})
	assert.Contains(t, out, "Auto-posted:     4")
	assert.Contains(t, out, "Escalated:       2")
	assert.NotContains(t, out, "Failed")

	assert.NotContains(t, out, "Already seen")

	out = RenderBatchSummary(engine.BatchSummary{Failed: 1, Duplicates: 3})
	assert.Contains(t, out, "Failed:          1")
	assert.Contains(t, out, "Already seen:    3")
}

func TestRenderLedgerSummary(t *testing.T) {
	out := RenderLedgerSummary(storage.LedgerSummary{
		ByStatus: map[model.TransactionStatus]storage.StatusTotals{
			model.StatusAutoPosted: {Debit: decimal.NewFromInt(12000), Count: 1},
		},
		TotalDebit:        decimal.NewFromInt(12000),
		TotalCredit:       decimal.NewFromInt(10800),
		TotalTDS:          decimal.NewFromInt(1200),
		Entries:           1,
		AverageConfidence: model.MaxConfidence,
	})
	assert.Contains(t, out, "AUTO_POSTED")
	assert.Contains(t, out, "12000.00")
	assert.Contains(t, out, "1200.00")
}

func TestInterruptHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewInterruptHandler(&buf)

	ctx, stop := h.HandleInterrupts(context.Background())
	assert.False(t, h.WasInterrupted())
	assert.NoError(t, ctx.Err())

	h.interrupt()
	h.interrupt()
	assert.True(t, h.WasInterrupted())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Processing interrupted")))

	stop()
	assert.Error(t, ctx.Err())
}
