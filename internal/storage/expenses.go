package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

const expenseColumns = `id, date, description, amount, category, receipt_reference,
	origin_rule_id, origin_period, external_reference, created_at`

func scanExpense(row rowScanner) (*model.Expense, error) {
	var (
		expense                         model.Expense
		date                            string
		receipt, ruleID, period, extRef sql.NullString
	)
	if err := row.Scan(
		&expense.ID, &date, &expense.Description, &expense.Amount, &expense.Category,
		&receipt, &ruleID, &period, &extRef, &expense.CreatedAt,
	); err != nil {
		return nil, err
	}

	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	expense.Date = d
	expense.ReceiptReference = stringPtr(receipt)
	expense.OriginRuleID = stringPtr(ruleID)
	expense.OriginPeriod = stringPtr(period)
	expense.ExternalReference = stringPtr(extRef)
	return &expense, nil
}

// CreateExpense stores a one-time expense. An expense whose external
// reference was already imported is a conflict.
func (s *SQLiteStorage) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createExpenseTx(ctx, s.db, expense)
}

func (s *SQLiteStorage) createExpenseTx(ctx context.Context, q queryer, expense *model.Expense) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if expense.ID == "" {
		expense.ID = model.NewID(model.PrefixExpense)
	}
	if err := expense.Validate(); err != nil {
		return err
	}

	expense.Date = model.Day(expense.Date)
	expense.CreatedAt = s.now()

	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, formatDate(expense.Date), expense.Description, expense.Amount, expense.Category,
		nullString(expense.ReceiptReference), nullString(expense.OriginRuleID),
		nullString(expense.OriginPeriod), nullString(expense.ExternalReference), expense.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			b := common.NewErrorf("expense %s already recorded", expense.ID).WithEntity("expense", expense.ID)
			switch {
			case expense.ExternalReference != nil:
				b = b.WithHintf("external reference %s was imported before", *expense.ExternalReference)
			case expense.OriginRuleID != nil:
				b = b.WithHintf("rule %s already materialized period %s", *expense.OriginRuleID, *expense.OriginPeriod)
			}
			return b.Mark(common.ErrConflict)
		}
		return fmt.Errorf("failed to create expense: %w", err)
	}

	slog.Debug("created expense", "id", expense.ID, "amount", expense.Amount.String(), "category", expense.Category)
	return nil
}

// GetExpense retrieves an expense by ID.
func (s *SQLiteStorage) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getExpenseTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getExpenseTx(ctx context.Context, q queryer, id string) (*model.Expense, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	expense, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("expense", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns expenses matching filter, newest first.
func (s *SQLiteStorage) ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listExpensesTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listExpensesTx(ctx context.Context, q queryer, filter service.ExpenseFilter) ([]model.Expense, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if !filter.Range.Start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(filter.Range.Start))
	}
	if !filter.Range.End.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(filter.Range.End))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer closeRows(rows)

	var expenses []model.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, *expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense. Deleting a materialized expense does not
// rewind its rule, so the period is not materialized again.
func (s *SQLiteStorage) DeleteExpense(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteExpenseTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteExpenseTx(ctx context.Context, q queryer, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound("expense", id)
	}

	slog.Info("deleted expense", "id", id)
	return nil
}
