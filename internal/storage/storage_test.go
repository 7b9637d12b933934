package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pendingDoc(id string, created time.Time) model.PendingDocument {
	amount := decimal.NewFromInt(10000)
	return model.PendingDocument{
		DocumentID: id,
		CreatedAt:  created,
		Reason:     model.ReasonLowConfidence,
		Fields: model.ExtractedFields{
			DocumentID: id,
			Vendor:     "Acme Rentals",
			Amount:     &amount,
			RawText:    "Monthly rent",
		},
		Candidate: model.ScoredCandidate{
			Provenance: model.ProvenanceExtractionOnly,
			Confidence: 3500,
			Signals:    map[model.Signal]model.Confidence{model.SignalAmountRange: 2000, model.SignalCategoryWord: 1500},
		},
	}
}

func ledgerTx(id string, status model.TransactionStatus, debit, tds string, created time.Time) model.Transaction {
	d := decimal.RequireFromString(debit)
	w := decimal.RequireFromString(tds)
	return model.Transaction{
		ID:            id,
		DocumentID:    "doc-" + id,
		Date:          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:     created,
		Vendor:        "Acme Rentals",
		DebitAccount:  "Rent Expense",
		CreditAccount: "Acme Payable",
		TDSAccount:    "TDS Payable",
		DebitAmount:   d,
		CreditAmount:  d.Sub(w),
		TDSAmount:     w,
		Status:        status,
		RuleApplied:   "acme rentals",
		Confidence:    10000,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestNewSQLiteStorage_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStorage(" ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestPending_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	doc := pendingDoc("inv-1", created)
	require.NoError(t, s.SavePending(ctx, doc))

	got, err := s.GetPending(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, doc.DocumentID, got.DocumentID)
	assert.Equal(t, doc.Reason, got.Reason)
	assert.Equal(t, doc.Candidate, got.Candidate)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.Fields.Amount.Equal(*doc.Fields.Amount))
	assert.Equal(t, "Monthly rent", got.Fields.RawText)
}

func TestPending_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SavePending(ctx, pendingDoc("b", base.Add(time.Minute))))
	require.NoError(t, s.SavePending(ctx, pendingDoc("a", base)))
	require.NoError(t, s.SavePending(ctx, pendingDoc("c", base.Add(2*time.Minute))))

	docs, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].DocumentID, docs[1].DocumentID, docs[2].DocumentID})

	require.NoError(t, s.MarkResolved(ctx, "b", "tx-1"))
	err = s.MarkResolved(ctx, "b", "tx-2")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	_, err = s.GetPending(ctx, "b")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	txID, err := s.ResolvedTransaction(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txID)

	docs, err = s.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	err = s.MarkResolved(ctx, "nope", "tx")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetPending(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPending_SaveReplacesOpenButNeverReopens(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	doc := pendingDoc("inv-1", time.Now())

	require.NoError(t, s.SavePending(ctx, doc))
	doc.Reason = model.ReasonNoPatternMatch
	require.NoError(t, s.SavePending(ctx, doc))

	got, err := s.GetPending(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNoPatternMatch, got.Reason)

	require.NoError(t, s.MarkResolved(ctx, "inv-1", "tx-1"))
	doc.Reason = model.ReasonMissingData
	err = s.SavePending(ctx, doc)
	require.ErrorIs(t, err, common.ErrAlreadyResolved)

	_, err = s.GetPending(ctx, "inv-1")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)
	txID, err := s.ResolvedTransaction(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txID)
}

func TestClaimDocument(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ClaimDocument(ctx, "inv-1"))
	err := s.ClaimDocument(ctx, "inv-1")
	require.ErrorIs(t, err, common.ErrAlreadyProcessed)

	require.NoError(t, s.ClaimDocument(ctx, "inv-2"))
	require.NoError(t, s.ReleaseDocument(ctx, "inv-2"))
	require.NoError(t, s.ClaimDocument(ctx, "inv-2"))

	assert.Error(t, s.ClaimDocument(ctx, ""))
}

func TestClaimDocument_ConcurrentClaimsSucceedOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ClaimDocument(ctx, "inv-1"); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestPending_ConcurrentResolveSucceedsOnce(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SavePending(ctx, pendingDoc("inv-1", time.Now())))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MarkResolved(ctx, "inv-1", fmt.Sprintf("tx-%d", i)); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestPending_Validation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.SavePending(ctx, model.PendingDocument{Reason: model.ReasonMissingData})
	assert.ErrorIs(t, err, ErrInvalidPending)

	err = s.SavePending(ctx, model.PendingDocument{DocumentID: "x"})
	assert.ErrorIs(t, err, ErrInvalidPending)
}

func TestLedger_AppendAndList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	first := ledgerTx("t1", model.StatusUserConfirmed, "10000", "1000", base)
	second := ledgerTx("t2", model.StatusAutoPosted, "12000", "1200", base.Add(time.Hour))
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))

	txs, err := s.ListTransactions(ctx, LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t2", txs[0].ID, "newest first")

	got := txs[1]
	assert.Equal(t, "10000.00", got.DebitAmount.StringFixed(2))
	assert.Equal(t, "9000.00", got.CreditAmount.StringFixed(2))
	assert.Equal(t, "1000.00", got.TDSAmount.StringFixed(2))
	assert.True(t, got.Balanced())
	assert.True(t, got.Date.Equal(first.Date))
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
	assert.Equal(t, model.StatusUserConfirmed, got.Status)
	assert.Equal(t, model.Confidence(10000), got.Confidence)

	txs, err = s.ListTransactions(ctx, LedgerFilter{Status: model.StatusAutoPosted})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ID)

	txs, err = s.ListTransactions(ctx, LedgerFilter{Vendor: "ACME RENTALS", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedger_RejectsInvalid(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	unbalanced := ledgerTx("t1", model.StatusAutoPosted, "100", "10", time.Now())
	unbalanced.CreditAmount = decimal.NewFromInt(100)
	assert.ErrorIs(t, s.Append(ctx, unbalanced), ErrInvalidTransaction)

	badStatus := ledgerTx("t2", "POSTED", "100", "0", time.Now())
	assert.ErrorIs(t, s.Append(ctx, badStatus), ErrInvalidTransaction)

	ok := ledgerTx("t3", model.StatusAutoPosted, "100", "0", time.Now())
	require.NoError(t, s.Append(ctx, ok))
	assert.Error(t, s.Append(ctx, ok), "duplicate id")
}

func TestLedger_Summary(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	empty, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Entries)
	assert.True(t, empty.TotalDebit.IsZero())

	base := time.Now()
	require.NoError(t, s.Append(ctx, ledgerTx("t1", model.StatusUserConfirmed, "10000", "1000", base)))
	require.NoError(t, s.Append(ctx, ledgerTx("t2", model.StatusAutoPosted, "12000", "1200", base)))
	matched := ledgerTx("t3", model.StatusPatternMatched, "500.50", "0", base)
	matched.Confidence = 6000
	require.NoError(t, s.Append(ctx, matched))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Entries)
	assert.Equal(t, "22500.50", summary.TotalDebit.StringFixed(2))
	assert.Equal(t, "20300.50", summary.TotalCredit.StringFixed(2))
	assert.Equal(t, "2200.00", summary.TotalTDS.StringFixed(2))
	assert.Equal(t, model.Confidence(8666), summary.AverageConfidence)
	assert.Equal(t, 1, summary.ByStatus[model.StatusAutoPosted].Count)
	assert.Equal(t, "500.50", summary.ByStatus[model.StatusPatternMatched].Debit.StringFixed(2))
}

func TestSQLiteStorage_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "books.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.SavePending(context.Background(), pendingDoc("inv-1", time.Now())))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(context.Background()))

	docs, err := reopened.ListPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, path, reopened.Path())
	assert.NoError(t, reopened.Ping(context.Background()))
}
