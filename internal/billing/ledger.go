// Package billing implements the time ledger, recurring expense scheduler,
// invoice sequencer, invoice assembler and financial rollup.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// DefaultBillingIncrement is the timer rounding step.
const DefaultBillingIncrement = 15 * time.Minute

// TimeLedger records logged work and its billing status.
type TimeLedger struct {
	store     service.TimeEntryStore
	increment time.Duration
}

// NewTimeLedger creates a ledger that rounds timer sessions to increment.
// A non-positive increment falls back to DefaultBillingIncrement.
func NewTimeLedger(store service.TimeEntryStore, increment time.Duration) *TimeLedger {
	if increment <= 0 {
		increment = DefaultBillingIncrement
	}
	return &TimeLedger{store: store, increment: increment}
}

// LogTime stores a new unbilled entry.
func (l *TimeLedger) LogTime(ctx context.Context, entry *model.TimeEntry) error {
	if entry == nil {
		return common.Validationf("time entry is required")
	}
	entry.Status = model.TimeEntryUnbilled
	entry.InvoiceID = nil
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := l.store.CreateTimeEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to log time: %w", err)
	}
	slog.Info("logged time",
		"id", entry.ID,
		"client", entry.ClientReference,
		"date", entry.Date.Format(model.DateLayout),
		"hours", entry.Hours.String())
	return nil
}

// ListUnbilled returns billable, unbilled entries for client, newest first.
// An empty client lists every client.
func (l *TimeLedger) ListUnbilled(ctx context.Context, client string) ([]model.TimeEntry, error) {
	status := model.TimeEntryUnbilled
	billable := true
	entries, err := l.store.ListTimeEntries(ctx, service.TimeEntryFilter{
		ClientReference: client,
		Status:          &status,
		Billable:        &billable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unbilled time: %w", err)
	}
	return entries, nil
}

// MarkBilled moves every entry to billed against invoiceID, or none of them.
func (l *TimeLedger) MarkBilled(ctx context.Context, entryIDs []string, invoiceID string) error {
	return l.store.MarkTimeEntriesBilled(ctx, entryIDs, invoiceID)
}

// Get returns one entry.
func (l *TimeLedger) Get(ctx context.Context, id string) (*model.TimeEntry, error) {
	return l.store.GetTimeEntry(ctx, id)
}

// List returns entries matching filter.
func (l *TimeLedger) List(ctx context.Context, filter service.TimeEntryFilter) ([]model.TimeEntry, error) {
	return l.store.ListTimeEntries(ctx, filter)
}

// Update edits an entry. Invoices keep their snapshot lines, so text, date,
// hours and rate may change at any status; the billable flag only while the
// entry is unbilled.
func (l *TimeLedger) Update(ctx context.Context, id string, changes model.TimeEntryChanges) (*model.TimeEntry, error) {
	entry, err := l.store.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	if changes.Billable != nil && *changes.Billable != entry.Billable && entry.Status != model.TimeEntryUnbilled {
		return nil, common.NewErrorf("time entry %s is %s; its billable flag cannot change", id, entry.Status).
			WithEntity("time_entry", id).
			WithHint("delete the invoice to release the entry first").
			Mark(common.ErrConflict)
	}

	changes.Apply(entry)
	if err := l.store.UpdateTimeEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update time entry: %w", err)
	}
	return entry, nil
}

// Delete removes an unbilled entry.
func (l *TimeLedger) Delete(ctx context.Context, id string) error {
	return l.store.DeleteTimeEntry(ctx, id)
}

// TimerSession is a finished stopwatch run. Paused time is not billed.
type TimerSession struct {
	Start           time.Time
	Stop            time.Time
	Rate            *decimal.Decimal
	Paused          time.Duration
	ClientReference string
	Description     string
	Billable        bool
}

// StopTimer logs a timer session, rounding its duration up to the ledger's
// billing increment. The entry is dated on the start day.
func (l *TimeLedger) StopTimer(ctx context.Context, session TimerSession) (*model.TimeEntry, error) {
	elapsed := session.Stop.Sub(session.Start) - session.Paused
	if elapsed <= 0 {
		return nil, common.Validationf("timer stopped before it started")
	}

	entry := &model.TimeEntry{
		ClientReference: session.ClientReference,
		Date:            model.Day(session.Start),
		Hours:           RoundDuration(elapsed, l.increment),
		Description:     session.Description,
		Billable:        session.Billable,
		Rate:            session.Rate,
	}
	if err := l.LogTime(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RoundDuration converts d to hours, rounded up to a whole number of
// increments and then up to the hundredth of an hour.
func RoundDuration(d, increment time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	if increment <= 0 {
		increment = time.Minute
	}
	steps := (d + increment - 1) / increment
	minutes := decimal.NewFromInt(int64(steps * increment / time.Minute))
	if rem := (steps * increment) % time.Minute; rem != 0 {
		minutes = minutes.Add(decimal.NewFromInt(int64(rem)).Div(decimal.NewFromInt(int64(time.Minute))))
	}
	return minutes.Div(decimal.NewFromInt(60)).RoundUp(2)
}
