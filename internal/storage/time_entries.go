package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

const timeEntryColumns = `id, client_reference, date, hours, description, billable, rate,
	status, invoice_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeEntry(row rowScanner) (*model.TimeEntry, error) {
	var (
		entry     model.TimeEntry
		date      string
		status    string
		rate      decimal.NullDecimal
		invoiceID sql.NullString
	)
	if err := row.Scan(
		&entry.ID, &entry.ClientReference, &date, &entry.Hours, &entry.Description,
		&entry.Billable, &rate, &status, &invoiceID, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	entry.Date = d
	entry.Status = model.TimeEntryStatus(status)
	entry.InvoiceID = stringPtr(invoiceID)
	if rate.Valid {
		r := rate.Decimal
		entry.Rate = &r
	}
	return &entry, nil
}

func nullRate(rate *decimal.Decimal) decimal.NullDecimal {
	if rate == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *rate, Valid: true}
}

// CreateTimeEntry stores a new time entry.
func (s *SQLiteStorage) CreateTimeEntry(ctx context.Context, entry *model.TimeEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createTimeEntryTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) createTimeEntryTx(ctx context.Context, q queryer, entry *model.TimeEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: time entry", ErrNilParameter)
	}
	if entry.ID == "" {
		entry.ID = model.NewID(model.PrefixTimeEntry)
	}
	if entry.Status == "" {
		entry.Status = model.TimeEntryUnbilled
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	now := s.now()
	entry.Date = model.Day(entry.Date)
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO time_entries (`+timeEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClientReference, formatDate(entry.Date), entry.Hours, entry.Description,
		entry.Billable, nullRate(entry.Rate), string(entry.Status), nullString(entry.InvoiceID),
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewErrorf("time entry %s already exists", entry.ID).
				WithEntity("time_entry", entry.ID).
				Mark(common.ErrConflict)
		}
		return fmt.Errorf("failed to create time entry: %w", err)
	}

	slog.Debug("created time entry", "id", entry.ID, "client", entry.ClientReference, "hours", entry.Hours.String())
	return nil
}

// GetTimeEntry retrieves a time entry by ID.
func (s *SQLiteStorage) GetTimeEntry(ctx context.Context, id string) (*model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTimeEntryTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getTimeEntryTx(ctx context.Context, q queryer, id string) (*model.TimeEntry, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id)
	entry, err := scanTimeEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("time_entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query time entry: %w", err)
	}
	return entry, nil
}

// GetTimeEntries retrieves the given entries in request order. A missing id
// is a not-found error.
func (s *SQLiteStorage) GetTimeEntries(ctx context.Context, ids []string) ([]model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTimeEntriesTx(ctx, s.db, ids)
}

func (s *SQLiteStorage) getTimeEntriesTx(ctx context.Context, q queryer, ids []string) ([]model.TimeEntry, error) {
	if err := validateIDs(ids, "time entry ids"); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id IN (`+placeholders(len(ids))+`)`,
		lo.ToAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer closeRows(rows)

	byID := make(map[string]model.TimeEntry, len(ids))
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		byID[entry.ID] = *entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}

	entries := make([]model.TimeEntry, 0, len(ids))
	for _, id := range ids {
		entry, ok := byID[id]
		if !ok {
			return nil, notFound("time_entry", id)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListTimeEntries returns entries matching filter, newest date first.
func (s *SQLiteStorage) ListTimeEntries(ctx context.Context, filter service.TimeEntryFilter) ([]model.TimeEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listTimeEntriesTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listTimeEntriesTx(ctx context.Context, q queryer, filter service.TimeEntryFilter) ([]model.TimeEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientReference != "" {
		where = append(where, "client_reference = ?")
		args = append(args, filter.ClientReference)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Billable != nil {
		where = append(where, "billable = ?")
		args = append(args, *filter.Billable)
	}
	if !filter.Range.Start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(filter.Range.Start))
	}
	if !filter.Range.End.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(filter.Range.End))
	}

	query := `SELECT ` + timeEntryColumns + ` FROM time_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer closeRows(rows)

	var entries []model.TimeEntry
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}

	slog.Debug("retrieved time entries", "count", len(entries))
	return entries, nil
}

// UpdateTimeEntry saves edits to an entry's date, hours, description, rate
// and billable flag. Status and invoice link are never changed here, and the
// billable flag is fixed once the entry has been invoiced.
func (s *SQLiteStorage) UpdateTimeEntry(ctx context.Context, entry *model.TimeEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.updateTimeEntryTx(ctx, tx, entry)
	})
}

func (s *SQLiteStorage) updateTimeEntryTx(ctx context.Context, q queryer, entry *model.TimeEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: time entry", ErrNilParameter)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	entry.Date = model.Day(entry.Date)
	entry.UpdatedAt = s.now()

	result, err := q.ExecContext(ctx, `
		UPDATE time_entries
		SET date = ?, hours = ?, description = ?, rate = ?, billable = ?, updated_at = ?
		WHERE id = ? AND (status = 'unbilled' OR billable = ?)`,
		formatDate(entry.Date), entry.Hours, entry.Description, nullRate(entry.Rate),
		entry.Billable, entry.UpdatedAt, entry.ID, entry.Billable,
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		found, err := exists(ctx, q, "time_entries", entry.ID)
		if err != nil {
			return err
		}
		if !found {
			return notFound("time_entry", entry.ID)
		}
		return common.NewErrorf("time entry %s is invoiced; its billable flag cannot change", entry.ID).
			WithEntity("time_entry", entry.ID).
			WithHint("delete or re-issue the invoice first").
			Mark(common.ErrConflict)
	}

	slog.Debug("updated time entry", "id", entry.ID)
	return nil
}

// DeleteTimeEntry removes an unbilled entry.
func (s *SQLiteStorage) DeleteTimeEntry(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.deleteTimeEntryTx(ctx, tx, id)
	})
}

func (s *SQLiteStorage) deleteTimeEntryTx(ctx context.Context, q queryer, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ? AND status = 'unbilled'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		found, err := exists(ctx, q, "time_entries", id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("time_entry", id)
		}
		return common.NewErrorf("time entry %s is invoiced and cannot be deleted", id).
			WithEntity("time_entry", id).
			Mark(common.ErrConflict)
	}

	slog.Info("deleted time entry", "id", id)
	return nil
}

// MarkTimeEntriesBilled moves every entry in ids from unbilled to billed
// against invoiceID. Either all entries move or none do.
func (s *SQLiteStorage) MarkTimeEntriesBilled(ctx context.Context, ids []string, invoiceID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.markTimeEntriesBilledTx(ctx, tx, ids, invoiceID)
	})
}

func (s *SQLiteStorage) markTimeEntriesBilledTx(ctx context.Context, q queryer, ids []string, invoiceID string) error {
	if err := validateIDs(ids, "time entry ids"); err != nil {
		return err
	}
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return err
	}

	found, err := exists(ctx, q, "invoices", invoiceID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("invoice", invoiceID)
	}

	args := append([]any{invoiceID, s.now()}, lo.ToAnySlice(ids)...)
	result, err := q.ExecContext(ctx, `
		UPDATE time_entries
		SET status = 'billed', invoice_id = ?, updated_at = ?
		WHERE status = 'unbilled' AND billable = 1 AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark time entries billed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		// The caller's transaction rolls back the partial update.
		return s.explainUnbillable(ctx, q, ids, invoiceID)
	}

	slog.Info("marked time entries billed", "invoice_id", invoiceID, "count", len(ids))
	return nil
}

// explainUnbillable finds the first entry in ids that blocked billing and
// returns an error naming it.
func (s *SQLiteStorage) explainUnbillable(ctx context.Context, q queryer, ids []string, invoiceID string) error {
	entries, err := s.getTimeEntriesTx(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.Billable {
			return common.NewErrorf("time entry %s is not billable", entry.ID).
				WithEntity("time_entry", entry.ID).
				Mark(common.ErrValidation)
		}
		if entry.Status != model.TimeEntryUnbilled || lo.FromPtr(entry.InvoiceID) == invoiceID {
			return common.NewErrorf("time entry %s is already %s on invoice %s", entry.ID, entry.Status, lo.FromPtr(entry.InvoiceID)).
				WithEntity("time_entry", entry.ID).
				WithHint("refresh the unbilled list before retrying").
				Mark(common.ErrConflict)
		}
	}
	return common.NewError("time entries changed while being billed").
		WithHint("refresh the unbilled list before retrying").
		Mark(common.ErrConflict)
}
