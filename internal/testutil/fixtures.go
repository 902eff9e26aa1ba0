package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/storage"
)

// Date parses a YYYY-MM-DD literal or fails the test.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(model.DateLayout, s)
	require.NoError(t, err)
	return d
}

// Fixtures is the data a Builder stored.
type Fixtures struct {
	TimeEntries []model.TimeEntry
	Expenses    []model.Expense
	Rules       []model.RecurringExpenseRule
}

// Builder seeds a ledger with time entries, expenses and recurring rules.
//
//	fx := testutil.NewBuilder(t).
//		WithTime("acme", "2024-03-01", "2.5").
//		WithExpense("software", "2024-03-02", "49.99").
//		Build(db.Storage)
type Builder struct {
	t       *testing.T
	entries []model.TimeEntry
	expense []model.Expense
	rules   []model.RecurringExpenseRule
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	return &Builder{t: t}
}

// WithTime adds a billable time entry.
func (b *Builder) WithTime(client, day, hours string) *Builder {
	return b.WithTimeEntry(model.TimeEntry{
		ClientReference: client,
		Date:            Date(b.t, day),
		Hours:           decimal.RequireFromString(hours),
		Description:     "work",
		Billable:        true,
	})
}

// WithTimeEntry adds entry as given; it is stored unbilled.
func (b *Builder) WithTimeEntry(entry model.TimeEntry) *Builder {
	b.entries = append(b.entries, entry)
	return b
}

// WithExpense adds a one-time expense.
func (b *Builder) WithExpense(category, day, amount string) *Builder {
	b.expense = append(b.expense, model.Expense{
		Category:    category,
		Date:        Date(b.t, day),
		Amount:      decimal.RequireFromString(amount),
		Description: category,
	})
	return b
}

// WithMonthlyRule adds a monthly rule booked on day.
func (b *Builder) WithMonthlyRule(category, amount string, day int) *Builder {
	b.rules = append(b.rules, model.RecurringExpenseRule{
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
		Description: category,
		Frequency:   model.FrequencyMonthly,
		DayOfPeriod: day,
	})
	return b
}

// Build stores everything and returns the stored records with their IDs.
func (b *Builder) Build(store *storage.SQLiteStorage) Fixtures {
	b.t.Helper()
	ctx := context.Background()

	var fx Fixtures
	for i := range b.entries {
		e := b.entries[i]
		e.Status = model.TimeEntryUnbilled
		require.NoError(b.t, store.CreateTimeEntry(ctx, &e), "failed to seed time entry")
		fx.TimeEntries = append(fx.TimeEntries, e)
	}
	for i := range b.expense {
		e := b.expense[i]
		require.NoError(b.t, store.CreateExpense(ctx, &e), "failed to seed expense")
		fx.Expenses = append(fx.Expenses, e)
	}
	for i := range b.rules {
		r := b.rules[i]
		require.NoError(b.t, store.CreateRule(ctx, &r), "failed to seed rule")
		fx.Rules = append(fx.Rules, r)
	}
	return fx
}
