package main

import (
	"fmt"

	"github.com/Veraticus/autobooks/internal/cli"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect posted transactions",
	}
	cmd.AddCommand(ledgerSummaryCmd())
	cmd.AddCommand(ledgerListCmd())
	return cmd
}

func openLedger(cmd *cobra.Command) (*storage.SQLiteStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := storage.NewSQLiteStorage(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func ledgerSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Totals by how each entry was posted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			summary, err := db.Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderLedgerSummary(summary))
			return nil
		},
	}
}

func ledgerListCmd() *cobra.Command {
	var filter storage.LedgerFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posted transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = model.TransactionStatus(status)
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			db, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			txs, err := db.ListTransactions(cmd.Context(), filter)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(txs))
			for _, tx := range txs {
				rows = append(rows, []string{
					tx.Date.Format("2006-01-02"),
					tx.DocumentID,
					tx.Vendor,
					string(tx.Status),
					tx.DebitAccount,
					tx.DebitAmount.StringFixed(2),
					tx.CreditAccount,
					tx.CreditAmount.StringFixed(2),
					tx.TDSAmount.StringFixed(2),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
				[]string{"Date", "Document", "Vendor", "Status", "Debit", "", "Credit", "", "TDS"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "AUTO_POSTED, PATTERN_MATCHED or USER_CONFIRMED")
	cmd.Flags().StringVar(&filter.Vendor, "vendor", "", "only this vendor")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum entries, 0 for all")
	return cmd
}
