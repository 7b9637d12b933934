package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/autobooks/internal/model"
	"github.com/shopspring/decimal"
)

// LedgerFilter narrows ListTransactions.
type LedgerFilter struct {
	Status model.TransactionStatus
	Vendor string
	Limit  int
}

// StatusTotals aggregates entries with one status.
type StatusTotals struct {
	Debit decimal.Decimal `json:"debit"`
	Count int             `json:"count"`
}

// LedgerSummary aggregates the whole ledger.
type LedgerSummary struct {
	ByStatus          map[model.TransactionStatus]StatusTotals `json:"by_status"`
	TotalDebit        decimal.Decimal                          `json:"total_debit"`
	TotalCredit       decimal.Decimal                          `json:"total_credit"`
	TotalTDS          decimal.Decimal                          `json:"total_tds"`
	Entries           int                                      `json:"entries"`
	AverageConfidence model.Confidence                         `json:"average_confidence"`
}

// Append records a posted transaction. Amounts are stored as exact decimal text.
func (s *SQLiteStorage) Append(ctx context.Context, tx model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(tx); err != nil {
		return err
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, document_id, date, vendor, debit_account, credit_account, tds_account,
			debit_amount, credit_amount, tds_amount, status, rule_applied, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.DocumentID, tx.Date.UTC(), tx.Vendor, tx.DebitAccount, tx.CreditAccount, tx.TDSAccount,
		tx.DebitAmount.StringFixed(2), tx.CreditAmount.StringFixed(2), tx.TDSAmount.StringFixed(2),
		string(tx.Status), tx.RuleApplied, int(tx.Confidence), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append ledger entry %s: %w", tx.ID, err)
	}
	return nil
}

// ListTransactions returns ledger entries, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter LedgerFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, document_id, date, vendor, debit_account, credit_account, tds_account,
			debit_amount, credit_amount, tds_amount, status, rule_applied, confidence, created_at
		FROM ledger_entries`
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Vendor != "" {
		where = append(where, "LOWER(vendor) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Vendor)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []model.Transaction
	for rows.Next() {
		var (
			tx                   model.Transaction
			debit, credit, taxed string
			status               string
			confidence           int
		)
		if err := rows.Scan(&tx.ID, &tx.DocumentID, &tx.Date, &tx.Vendor, &tx.DebitAccount, &tx.CreditAccount,
			&tx.TDSAccount, &debit, &credit, &taxed, &status, &tx.RuleApplied, &confidence, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if tx.DebitAmount, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("invalid debit amount in %s: %w", tx.ID, err)
		}
		if tx.CreditAmount, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("invalid credit amount in %s: %w", tx.ID, err)
		}
		if tx.TDSAmount, err = decimal.NewFromString(taxed); err != nil {
			return nil, fmt.Errorf("invalid tds amount in %s: %w", tx.ID, err)
		}
		tx.Status = model.TransactionStatus(status)
		tx.Confidence = model.Confidence(confidence)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return txs, nil
}

// Summary totals the ledger. Sums are computed in decimal, not by SQLite.
func (s *SQLiteStorage) Summary(ctx context.Context) (LedgerSummary, error) {
	txs, err := s.ListTransactions(ctx, LedgerFilter{})
	if err != nil {
		return LedgerSummary{}, err
	}

	summary := LedgerSummary{
		ByStatus:    make(map[model.TransactionStatus]StatusTotals),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		TotalTDS:    decimal.Zero,
	}
	var confidenceSum int
	for _, tx := range txs {
		summary.Entries++
		summary.TotalDebit = summary.TotalDebit.Add(tx.DebitAmount)
		summary.TotalCredit = summary.TotalCredit.Add(tx.CreditAmount)
		summary.TotalTDS = summary.TotalTDS.Add(tx.TDSAmount)
		confidenceSum += int(tx.Confidence)

		st := summary.ByStatus[tx.Status]
		st.Count++
		st.Debit = st.Debit.Add(tx.DebitAmount)
		summary.ByStatus[tx.Status] = st
	}
	if summary.Entries > 0 {
		summary.AverageConfidence = model.Confidence(confidenceSum / summary.Entries)
	}
	return summary, nil
}
