package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS settings (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					invoice_prefix TEXT NOT NULL,
					business_name TEXT NOT NULL DEFAULT '',
					default_hourly_rate TEXT NOT NULL,
					payment_terms_days INTEGER NOT NULL DEFAULT 30 CHECK (payment_terms_days >= 0)
				)`,

				`CREATE TABLE IF NOT EXISTS sequence_counters (
					prefix TEXT PRIMARY KEY,
					next_value INTEGER NOT NULL CHECK (next_value >= 0),
					updated_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					number TEXT UNIQUE NOT NULL,
					sequence INTEGER NOT NULL,
					client_reference TEXT NOT NULL,
					issue_date TEXT NOT NULL,
					due_date TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('draft', 'sent', 'paid')),
					total TEXT NOT NULL,
					payment_details TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_invoices_client ON invoices(client_reference)`,
				`CREATE INDEX idx_invoices_status ON invoices(status)`,

				`CREATE TABLE IF NOT EXISTS invoice_line_items (
					invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					description TEXT NOT NULL,
					quantity TEXT NOT NULL,
					unit_price TEXT NOT NULL,
					amount TEXT NOT NULL,
					source_time_entry_id TEXT,
					PRIMARY KEY (invoice_id, position)
				)`,

				`CREATE TABLE IF NOT EXISTS time_entries (
					id TEXT PRIMARY KEY,
					client_reference TEXT NOT NULL,
					date TEXT NOT NULL,
					hours TEXT NOT NULL,
					description TEXT NOT NULL,
					billable BOOLEAN NOT NULL DEFAULT 1,
					rate TEXT,
					status TEXT NOT NULL DEFAULT 'unbilled' CHECK (status IN ('unbilled', 'billed', 'paid')),
					invoice_id TEXT REFERENCES invoices(id),
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					CHECK ((status = 'unbilled') = (invoice_id IS NULL))
				)`,
				`CREATE INDEX idx_time_entries_client_status ON time_entries(client_reference, status)`,
				`CREATE INDEX idx_time_entries_invoice ON time_entries(invoice_id)`,
				`CREATE INDEX idx_time_entries_date ON time_entries(date)`,

				`CREATE TABLE IF NOT EXISTS recurring_rules (
					id TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					amount TEXT NOT NULL,
					category TEXT NOT NULL,
					frequency TEXT NOT NULL CHECK (frequency IN ('monthly', 'yearly')),
					day_of_period INTEGER NOT NULL CHECK (day_of_period BETWEEN 1 AND 31),
					last_materialized_period TEXT,
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					date TEXT NOT NULL,
					description TEXT NOT NULL,
					amount TEXT NOT NULL,
					category TEXT NOT NULL,
					receipt_reference TEXT,
					origin_rule_id TEXT REFERENCES recurring_rules(id) ON DELETE SET NULL,
					origin_period TEXT,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_expenses_date ON expenses(date)`,
				`CREATE INDEX idx_expenses_category ON expenses(category)`,
				// At most one expense per rule per period.
				`CREATE UNIQUE INDEX idx_expenses_rule_period ON expenses(origin_rule_id, origin_period)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add external reference for imported expenses",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE expenses ADD COLUMN external_reference TEXT`,
				`CREATE UNIQUE INDEX idx_expenses_external_reference ON expenses(external_reference)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// LatestSchemaVersion is the version Migrate brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		// Another session may have applied it while we waited for the lock.
		var lockedVersion int
		if scanErr := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&lockedVersion); scanErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to get schema version: %w", scanErr)
		}
		if lockedVersion >= migration.Version {
			_ = tx.Rollback()
			continue
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

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
