package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

const ruleColumns = `id, description, amount, category, frequency, day_of_period,
	last_materialized_period, created_at`

func scanRule(row rowScanner) (*model.RecurringExpenseRule, error) {
	var (
		rule      model.RecurringExpenseRule
		frequency string
		last      sql.NullString
	)
	if err := row.Scan(
		&rule.ID, &rule.Description, &rule.Amount, &rule.Category, &frequency,
		&rule.DayOfPeriod, &last, &rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.Frequency = model.Frequency(frequency)
	rule.LastMaterializedPeriod = stringPtr(last)
	return &rule, nil
}

// CreateRule stores a new recurring expense rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.RecurringExpenseRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createRuleTx(ctx, s.db, rule)
}

func (s *SQLiteStorage) createRuleTx(ctx context.Context, q queryer, rule *model.RecurringExpenseRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if rule.ID == "" {
		rule.ID = model.NewID(model.PrefixRule)
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.CreatedAt = s.now()

	_, err := q.ExecContext(ctx, `
		INSERT INTO recurring_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Description, rule.Amount, rule.Category, string(rule.Frequency),
		rule.DayOfPeriod, nullString(rule.LastMaterializedPeriod), rule.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewErrorf("rule %s already exists", rule.ID).
				WithEntity("rule", rule.ID).
				Mark(common.ErrConflict)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	slog.Info("created recurring rule", "id", rule.ID, "frequency", rule.Frequency, "day", rule.DayOfPeriod)
	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.RecurringExpenseRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRuleTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getRuleTx(ctx context.Context, q queryer, id string) (*model.RecurringExpenseRule, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	rule, err := scanRule(q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule in creation order.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.RecurringExpenseRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRulesTx(ctx, s.db)
}

func (s *SQLiteStorage) listRulesTx(ctx context.Context, q queryer) ([]model.RecurringExpenseRule, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer closeRows(rows)

	var rules []model.RecurringExpenseRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule. Expenses it materialized are kept and lose
// their rule reference.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteRuleTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteRuleTx(ctx context.Context, q queryer, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound("rule", id)
	}

	slog.Info("deleted recurring rule", "id", id)
	return nil
}

// MaterializeRule advances the rule to period and stores expense in one
// transaction. The advance is a conditional write: if another session has
// already moved the rule to period (or past it) nothing is stored and a
// conflict is returned.
func (s *SQLiteStorage) MaterializeRule(ctx context.Context, ruleID, period string, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.materializeRuleTx(ctx, tx, ruleID, period, expense)
	})
}

func (s *SQLiteStorage) materializeRuleTx(ctx context.Context, q queryer, ruleID, period string, expense *model.Expense) error {
	if err := validateString(ruleID, "ruleID"); err != nil {
		return err
	}
	if err := validateString(period, "period"); err != nil {
		return err
	}
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE recurring_rules
		SET last_materialized_period = ?
		WHERE id = ? AND (last_materialized_period IS NULL OR last_materialized_period < ?)`,
		period, ruleID, period,
	)
	if err != nil {
		return fmt.Errorf("failed to advance rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		found, err := exists(ctx, q, "recurring_rules", ruleID)
		if err != nil {
			return err
		}
		if !found {
			return notFound("rule", ruleID)
		}
		return common.NewErrorf("rule %s already materialized for %s", ruleID, period).
			WithEntity("rule", ruleID).
			Mark(common.ErrConflict)
	}

	expense.OriginRuleID = &ruleID
	expense.OriginPeriod = &period
	if err := s.createExpenseTx(ctx, q, expense); err != nil {
		return err
	}

	slog.Info("materialized recurring expense", "rule_id", ruleID, "period", period, "expense_id", expense.ID)
	return nil
}
