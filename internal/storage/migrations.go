package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Pending documents",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS pending_documents (
					document_id TEXT PRIMARY KEY,
					vendor TEXT NOT NULL DEFAULT '',
					payload TEXT NOT NULL,
					reason TEXT NOT NULL,
					confidence INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
					created_at DATETIME NOT NULL,
					resolved_at DATETIME
				)`,
				`CREATE INDEX idx_pending_status ON pending_documents(status, created_at)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Ledger entries",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					document_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					vendor TEXT NOT NULL,
					debit_account TEXT NOT NULL,
					credit_account TEXT NOT NULL,
					tds_account TEXT NOT NULL DEFAULT '',
					debit_amount TEXT NOT NULL,
					credit_amount TEXT NOT NULL,
					tds_amount TEXT NOT NULL,
					status TEXT NOT NULL,
					rule_applied TEXT NOT NULL DEFAULT '',
					confidence INTEGER NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_ledger_document ON ledger_entries(document_id)`,
				`CREATE INDEX idx_ledger_status ON ledger_entries(status)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Link resolved documents to their transaction",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE pending_documents ADD COLUMN transaction_id TEXT`,
			)
		},
	},
	{
		Version:     4,
		Description: "Processed documents",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS processed_documents (
					document_id TEXT PRIMARY KEY,
					claimed_at DATETIME NOT NULL
				)`,
				`INSERT OR IGNORE INTO processed_documents (document_id, claimed_at)
					SELECT document_id, created_at FROM pending_documents`,
				`INSERT OR IGNORE INTO processed_documents (document_id, claimed_at)
					SELECT document_id, MIN(created_at) FROM ledger_entries GROUP BY document_id`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
