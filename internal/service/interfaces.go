// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/model"
)

// DateRange represents a time period with inclusive start and end dates.
// A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// TimeEntryFilter defines filtering options for time entry queries.
type TimeEntryFilter struct {
	Status          *model.TimeEntryStatus
	Billable        *bool
	ClientReference string
	Range           DateRange
}

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	Category string
	Range    DateRange
}

// InvoiceFilter defines filtering options for invoice queries.
type InvoiceFilter struct {
	Status          *model.InvoiceStatus
	ClientReference string
}

// TimeEntryStore persists time entries.
type TimeEntryStore interface {
	CreateTimeEntry(ctx context.Context, entry *model.TimeEntry) error
	GetTimeEntry(ctx context.Context, id string) (*model.TimeEntry, error)
	GetTimeEntries(ctx context.Context, ids []string) ([]model.TimeEntry, error)
	ListTimeEntries(ctx context.Context, filter TimeEntryFilter) ([]model.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, entry *model.TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id string) error
	// MarkTimeEntriesBilled moves every entry from unbilled to billed in one
	// conditional write, or changes nothing.
	MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpense(ctx context.Context, id string) (*model.Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]model.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// RuleStore persists recurring expense rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.RecurringExpenseRule) error
	GetRule(ctx context.Context, id string) (*model.RecurringExpenseRule, error)
	ListRules(ctx context.Context) ([]model.RecurringExpenseRule, error)
	DeleteRule(ctx context.Context, id string) error
	// MaterializeRule advances the rule to period and stores expense, only if
	// the rule's last materialized period is still behind period.
	MaterializeRule(ctx context.Context, ruleID, period string, expense *model.Expense) error
}

// InvoiceStore persists invoices and their line items.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, invoice *model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error)
	// SetInvoiceStatus changes the status and moves linked entries to the
	// matching entry status.
	SetInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error
	// DeleteInvoice removes the invoice and releases linked entries to unbilled.
	DeleteInvoice(ctx context.Context, id string) error
}

// SequenceStore holds the invoice number counters.
type SequenceStore interface {
	// NextSequence atomically returns the current value of the prefix counter
	// and advances it. start seeds a counter that does not exist yet.
	NextSequence(ctx context.Context, prefix string, start int64) (int64, error)
	SetSequenceStart(ctx context.Context, prefix string, value int64) error
	GetSequence(ctx context.Context, prefix string) (*model.SequenceCounter, error)
}

// SettingsStore holds the business settings record.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error
}

// Stores groups every store a transaction can reach.
type Stores interface {
	TimeEntryStore
	ExpenseStore
	RuleStore
	InvoiceStore
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Stores
	SequenceStore
	SettingsStore

	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. Sequence allocation is not
// part of it: an allocated number stays consumed when the transaction rolls
// back.
type Transaction interface {
	Commit() error
	Rollback() error
	Stores
}

// TxBeginner starts transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Transaction, error)
}

// CategorySummary contains aggregated statistics for an expense category.
type CategorySummary struct {
	Count  int
	Amount decimal.Decimal
}
