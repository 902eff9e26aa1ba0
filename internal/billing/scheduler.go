package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Outcome is what evaluating one rule did.
type Outcome string

const (
	// OutcomeMaterialized means an expense was created for the period.
	OutcomeMaterialized Outcome = "materialized"
	// OutcomeAlreadyMaterialized means another evaluation got there first.
	OutcomeAlreadyMaterialized Outcome = "already_materialized"
	// OutcomeNotDue means the period is done or its day has not arrived.
	OutcomeNotDue Outcome = "not_due"
	// OutcomeFailed means evaluation returned an error or panicked.
	OutcomeFailed Outcome = "failed"
)

// RuleResult is the outcome for a single rule.
type RuleResult struct {
	Expense *model.Expense
	Err     error
	RuleID  string
	Period  string
	Outcome Outcome
}

// EvaluationReport lists the outcome of every evaluated rule in input order.
type EvaluationReport struct {
	AsOf    time.Time
	Results []RuleResult
}

// Count returns how many rules ended with outcome.
func (r *EvaluationReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Expenses returns the expenses created by this evaluation.
func (r *EvaluationReport) Expenses() []model.Expense {
	var out []model.Expense
	for _, res := range r.Results {
		if res.Expense != nil {
			out = append(out, *res.Expense)
		}
	}
	return out
}

// Err joins every per-rule failure, or returns nil.
func (r *EvaluationReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", res.RuleID, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Due reports whether rule should materialize for the period containing
// asOf. It returns the period key and the date the expense is booked on:
// the rule's day, clamped to the last day of asOf's month.
func Due(rule model.RecurringExpenseRule, asOf time.Time) (period string, on time.Time, due bool) {
	period = rule.Frequency.PeriodKey(asOf)
	day := rule.EffectiveDay(asOf)
	on = time.Date(asOf.Year(), asOf.Month(), day, 0, 0, 0, 0, time.UTC)

	if rule.LastMaterializedPeriod != nil && period <= *rule.LastMaterializedPeriod {
		return period, on, false
	}
	return period, on, asOf.Day() >= day
}

// Scheduler materializes recurring expense rules. It keeps no state: the
// rule's last materialized period in the store is the only record of what
// has run, so any number of sessions may evaluate concurrently.
type Scheduler struct {
	store service.RuleStore
}

// NewScheduler creates a scheduler backed by store.
func NewScheduler(store service.RuleStore) *Scheduler {
	return &Scheduler{store: store}
}

// Evaluate materializes every due rule as of asOf. A failing or panicking
// rule is recorded in the report and does not stop the others; the returned
// error joins all failures.
func (s *Scheduler) Evaluate(ctx context.Context, rules []model.RecurringExpenseRule, asOf time.Time) (*EvaluationReport, error) {
	report := &EvaluationReport{AsOf: model.Day(asOf), Results: make([]RuleResult, 0, len(rules))}

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, RuleResult{RuleID: rule.ID, Outcome: OutcomeFailed, Err: err})
			continue
		}

		var (
			result RuleResult
			pc     panics.Catcher
		)
		pc.Try(func() {
			result = s.evaluateRule(ctx, rule, report.AsOf)
		})
		if recovered := pc.Recovered(); recovered != nil {
			result = RuleResult{RuleID: rule.ID, Outcome: OutcomeFailed, Err: recovered.AsError()}
		}

		if result.Err != nil {
			common.LogError(result.Err, "recurring rule failed", common.Fields{"rule_id": rule.ID})
		} else {
			slog.Debug("evaluated recurring rule", "rule_id", rule.ID, "period", result.Period, "outcome", result.Outcome)
		}
		report.Results = append(report.Results, result)
	}

	slog.Info("evaluated recurring rules",
		"as_of", report.AsOf.Format(model.DateLayout),
		"rules", len(rules),
		"materialized", report.Count(OutcomeMaterialized),
		"failed", report.Count(OutcomeFailed))
	return report, report.Err()
}

func (s *Scheduler) evaluateRule(ctx context.Context, rule model.RecurringExpenseRule, asOf time.Time) RuleResult {
	period, on, due := Due(rule, asOf)
	result := RuleResult{RuleID: rule.ID, Period: period, Outcome: OutcomeNotDue}
	if !due {
		return result
	}

	expense := &model.Expense{
		Date:        on,
		Description: rule.Description,
		Amount:      rule.Amount,
		Category:    rule.Category,
	}
	err := s.store.MaterializeRule(ctx, rule.ID, period, expense)
	switch {
	case err == nil:
		result.Outcome = OutcomeMaterialized
		result.Expense = expense
	case common.IsConflict(err):
		result.Outcome = OutcomeAlreadyMaterialized
	default:
		result.Outcome = OutcomeFailed
		result.Err = err
	}
	return result
}

// EvaluateAll loads every rule from the store and evaluates it as of asOf.
func (s *Scheduler) EvaluateAll(ctx context.Context, asOf time.Time) (*EvaluationReport, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring rules: %w", err)
	}
	return s.Evaluate(ctx, rules, asOf)
}

// CreateRule validates and stores a new rule.
func (s *Scheduler) CreateRule(ctx context.Context, rule *model.RecurringExpenseRule) error {
	if rule == nil {
		return common.Validationf("rule is required")
	}
	rule.LastMaterializedPeriod = nil
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.store.CreateRule(ctx, rule)
}

// GetRule returns one rule.
func (s *Scheduler) GetRule(ctx context.Context, id string) (*model.RecurringExpenseRule, error) {
	return s.store.GetRule(ctx, id)
}

// ListRules returns every rule.
func (s *Scheduler) ListRules(ctx context.Context) ([]model.RecurringExpenseRule, error) {
	return s.store.ListRules(ctx)
}

// DeleteRule removes a rule; its materialized expenses stay in the ledger.
func (s *Scheduler) DeleteRule(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}
