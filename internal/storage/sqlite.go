package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// SQLiteStorage implements the Storage interface using SQLite.
//
// Several processes may open the same file. Write transactions begin with
// BEGIN IMMEDIATE so the write lock is taken up front and waits out the busy
// timeout instead of failing on lock upgrade.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection per process; cross-process ordering is SQLite's file lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// inTx runs fn in its own transaction and commits when it returns nil.
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the storage helpers with the transaction.

func (t *sqliteTransaction) CreateTimeEntry(ctx context.Context, entry *model.TimeEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createTimeEntryTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) GetTimeEntry(ctx context.Context, id string) (*model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTimeEntryTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetTimeEntries(ctx context.Context, ids []string) ([]model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTimeEntriesTx(ctx, t.tx, ids)
}

func (t *sqliteTransaction) ListTimeEntries(ctx context.Context, filter service.TimeEntryFilter) ([]model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listTimeEntriesTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) UpdateTimeEntry(ctx context.Context, entry *model.TimeEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.updateTimeEntryTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) DeleteTimeEntry(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteTimeEntryTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.markTimeEntriesBilledTx(ctx, t.tx, ids, invoiceID)
}

func (t *sqliteTransaction) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createExpenseTx(ctx, t.tx, expense)
}

func (t *sqliteTransaction) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getExpenseTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listExpensesTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) DeleteExpense(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteExpenseTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) CreateRule(ctx context.Context, rule *model.RecurringExpenseRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createRuleTx(ctx, t.tx, rule)
}

func (t *sqliteTransaction) GetRule(ctx context.Context, id string) (*model.RecurringExpenseRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getRuleTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListRules(ctx context.Context) ([]model.RecurringExpenseRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listRulesTx(ctx, t.tx)
}

func (t *sqliteTransaction) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteRuleTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) MaterializeRule(ctx context.Context, ruleID, period string, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.materializeRuleTx(ctx, t.tx, ruleID, period, expense)
}

func (t *sqliteTransaction) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.createInvoiceTx(ctx, t.tx, invoice)
}

func (t *sqliteTransaction) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getInvoiceTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListInvoices(ctx context.Context, filter service.InvoiceFilter) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listInvoicesTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) SetInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.setInvoiceStatusTx(ctx, t.tx, id, status)
}

func (t *sqliteTransaction) DeleteInvoice(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteInvoiceTx(ctx, t.tx, id)
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
