package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

const invoiceColumns = `id, number, sequence, client_reference, issue_date, due_date, status,
	total, payment_details, created_at, updated_at`

type lineRow struct {
	invoiceID string
	line      model.InvoiceLineItem
}

func scanInvoice(row rowScanner) (*model.Invoice, error) {
	var (
		invoice        model.Invoice
		issue, due     string
		status         string
		paymentDetails sql.NullString
	)
	if err := row.Scan(
		&invoice.ID, &invoice.Number, &invoice.Sequence, &invoice.ClientReference, &issue, &due,
		&status, &invoice.Total, &paymentDetails, &invoice.CreatedAt, &invoice.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if invoice.IssueDate, err = parseDate(issue); err != nil {
		return nil, err
	}
	if invoice.DueDate, err = parseDate(due); err != nil {
		return nil, err
	}
	invoice.Status = model.InvoiceStatus(status)

	if paymentDetails.Valid && paymentDetails.String != "" {
		var details model.PaymentDetails
		if err := json.Unmarshal([]byte(paymentDetails.String), &details); err != nil {
			return nil, fmt.Errorf("failed to decode payment details: %w", err)
		}
		invoice.PaymentDetails = &details
	}
	return &invoice, nil
}

func validateInvoice(invoice *model.Invoice) error {
	if strings.TrimSpace(invoice.Number) == "" {
		return common.Validationf("invoice number is required")
	}
	if strings.TrimSpace(invoice.ClientReference) == "" {
		return common.Validationf("invoice client reference is required")
	}
	if !invoice.Status.Valid() {
		return common.Validationf("invalid invoice status %q", invoice.Status)
	}
	if invoice.IssueDate.IsZero() || invoice.DueDate.IsZero() {
		return common.Validationf("invoice issue and due dates are required")
	}
	if invoice.DueDate.Before(invoice.IssueDate) {
		return common.Validationf("due date %s is before issue date %s",
			formatDate(invoice.DueDate), formatDate(invoice.IssueDate))
	}
	if len(invoice.LineItems) == 0 {
		return common.Validationf("invoice needs at least one line item")
	}
	return nil
}

// CreateInvoice stores an invoice and its line items. Line amounts and the
// total are recomputed before they are written.
func (s *SQLiteStorage) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.createInvoiceTx(ctx, tx, invoice)
	})
}

func (s *SQLiteStorage) createInvoiceTx(ctx context.Context, q queryer, invoice *model.Invoice) error {
	if invoice == nil {
		return fmt.Errorf("%w: invoice", ErrNilParameter)
	}
	if invoice.ID == "" {
		invoice.ID = model.NewID(model.PrefixInvoice)
	}
	if invoice.Status == "" {
		invoice.Status = model.InvoiceDraft
	}
	if err := validateInvoice(invoice); err != nil {
		return err
	}

	invoice.Recompute()
	invoice.IssueDate = model.Day(invoice.IssueDate)
	invoice.DueDate = model.Day(invoice.DueDate)
	now := s.now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	var details sql.NullString
	if invoice.PaymentDetails != nil {
		raw, err := json.Marshal(invoice.PaymentDetails)
		if err != nil {
			return fmt.Errorf("failed to encode payment details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID, invoice.Number, invoice.Sequence, invoice.ClientReference,
		formatDate(invoice.IssueDate), formatDate(invoice.DueDate), string(invoice.Status),
		invoice.Total, details, invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewErrorf("invoice number %s is already in use", invoice.Number).
				WithEntity("invoice", invoice.ID).
				Mark(common.ErrConflict)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	stmt, err := prepare(ctx, q, `
		INSERT INTO invoice_line_items
			(invoice_id, position, description, quantity, unit_price, amount, source_time_entry_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Error("failed to close statement", "error", err)
		}
	}()

	for _, line := range invoice.LineItems {
		if _, err := stmt.ExecContext(ctx,
			invoice.ID, line.Position, line.Description, line.Quantity, line.UnitPrice,
			line.Amount, nullString(line.SourceTimeEntryID),
		); err != nil {
			return fmt.Errorf("failed to insert line item %d: %w", line.Position, err)
		}
	}

	slog.Info("created invoice",
		"id", invoice.ID,
		"number", invoice.Number,
		"client", invoice.ClientReference,
		"lines", len(invoice.LineItems),
		"total", invoice.Total.String())
	return nil
}

// prepare prepares a statement on either a database or a transaction.
func prepare(ctx context.Context, q queryer, query string) (*sql.Stmt, error) {
	type preparer interface {
		PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	}
	p, ok := q.(preparer)
	if !ok {
		return nil, fmt.Errorf("queryer %T cannot prepare statements", q)
	}
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return stmt, nil
}

// GetInvoice retrieves an invoice with its line items.
func (s *SQLiteStorage) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getInvoiceTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getInvoiceTx(ctx context.Context, q queryer, id string) (*model.Invoice, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	invoice, err := scanInvoice(q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	lines, err := s.queryLines(ctx, q, `invoice_id = ?`, id)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = lo.Map(lines, func(r lineRow, _ int) model.InvoiceLineItem { return r.line })
	return invoice, nil
}

// ListInvoices returns invoices matching filter, most recently numbered first.
func (s *SQLiteStorage) ListInvoices(ctx context.Context, filter service.InvoiceFilter) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listInvoicesTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listInvoicesTx(ctx context.Context, q queryer, filter service.InvoiceFilter) ([]model.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ClientReference != "" {
		where = append(where, "client_reference = ?")
		args = append(args, filter.ClientReference)
	}
	cond := "1 = 1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+cond+` ORDER BY issue_date DESC, sequence DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer closeRows(rows)

	var invoices []model.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	lines, err := s.queryLines(ctx, q, `invoice_id IN (SELECT id FROM invoices WHERE `+cond+`)`, args...)
	if err != nil {
		return nil, err
	}
	byInvoice := lo.GroupBy(lines, func(r lineRow) string { return r.invoiceID })
	for i := range invoices {
		invoices[i].LineItems = lo.Map(byInvoice[invoices[i].ID], func(r lineRow, _ int) model.InvoiceLineItem {
			return r.line
		})
	}
	return invoices, nil
}

func (s *SQLiteStorage) queryLines(ctx context.Context, q queryer, cond string, args ...any) ([]lineRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT invoice_id, position, description, quantity, unit_price, amount, source_time_entry_id
		FROM invoice_line_items
		WHERE `+cond+`
		ORDER BY invoice_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer closeRows(rows)

	var lines []lineRow
	for rows.Next() {
		var (
			r      lineRow
			source sql.NullString
		)
		if err := rows.Scan(
			&r.invoiceID, &r.line.Position, &r.line.Description, &r.line.Quantity,
			&r.line.UnitPrice, &r.line.Amount, &source,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		r.line.SourceTimeEntryID = stringPtr(source)
		lines = append(lines, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}
	return lines, nil
}

// SetInvoiceStatus changes an invoice's status. Linked time entries follow:
// paid when the invoice is paid, billed otherwise.
func (s *SQLiteStorage) SetInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.setInvoiceStatusTx(ctx, tx, id, status)
	})
}

func (s *SQLiteStorage) setInvoiceStatusTx(ctx context.Context, q queryer, id string, status model.InvoiceStatus) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return common.Validationf("invalid invoice status %q", status)
	}

	now := s.now()
	result, err := q.ExecContext(ctx, `UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound("invoice", id)
	}

	entries, err := q.ExecContext(ctx, `
		UPDATE time_entries SET status = ?, updated_at = ?
		WHERE invoice_id = ? AND status != ?`,
		string(status.EntryStatus()), now, id, string(status.EntryStatus()))
	if err != nil {
		return fmt.Errorf("failed to cascade invoice status to time entries: %w", err)
	}
	moved, err := entries.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Info("updated invoice status", "id", id, "status", status, "entries_moved", moved)
	return nil
}

// DeleteInvoice removes an invoice and its line items and returns every
// linked time entry to unbilled.
func (s *SQLiteStorage) DeleteInvoice(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.deleteInvoiceTx(ctx, tx, id)
	})
}

func (s *SQLiteStorage) deleteInvoiceTx(ctx context.Context, q queryer, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	released, err := q.ExecContext(ctx, `
		UPDATE time_entries SET status = 'unbilled', invoice_id = NULL, updated_at = ?
		WHERE invoice_id = ?`, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to release time entries: %w", err)
	}
	count, err := released.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	result, err := q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound("invoice", id)
	}

	slog.Info("deleted invoice", "id", id, "entries_released", count)
	return nil
}
