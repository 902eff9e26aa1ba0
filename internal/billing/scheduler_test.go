package billing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func TestDue(t *testing.T) {
	tests := []struct {
		name       string
		last       *string
		asOf       string
		wantPeriod string
		wantOn     string
		frequency  model.Frequency
		day        int
		wantDue    bool
	}{
		{
			name: "monthly never run, day reached", frequency: model.FrequencyMonthly, day: 1,
			asOf: "2024-03-05", wantPeriod: "2024-03", wantOn: "2024-03-01", wantDue: true,
		},
		{
			name: "monthly day not reached", frequency: model.FrequencyMonthly, day: 10,
			asOf: "2024-03-05", wantPeriod: "2024-03", wantOn: "2024-03-10", wantDue: false,
		},
		{
			name: "monthly already ran this period", frequency: model.FrequencyMonthly, day: 1, last: ptr("2024-03"),
			asOf: "2024-03-20", wantPeriod: "2024-03", wantOn: "2024-03-01", wantDue: false,
		},
		{
			name: "monthly ran last period", frequency: model.FrequencyMonthly, day: 1, last: ptr("2024-02"),
			asOf: "2024-03-01", wantPeriod: "2024-03", wantOn: "2024-03-01", wantDue: true,
		},
		{
			name: "clock behind last period", frequency: model.FrequencyMonthly, day: 1, last: ptr("2024-04"),
			asOf: "2024-03-20", wantPeriod: "2024-03", wantOn: "2024-03-01", wantDue: false,
		},
		{
			name: "day 31 in a 30 day month", frequency: model.FrequencyMonthly, day: 31,
			asOf: "2024-04-30", wantPeriod: "2024-04", wantOn: "2024-04-30", wantDue: true,
		},
		{
			name: "day 31 in leap february", frequency: model.FrequencyMonthly, day: 31,
			asOf: "2024-02-29", wantPeriod: "2024-02", wantOn: "2024-02-29", wantDue: true,
		},
		{
			name: "day 30 in february before the last day", frequency: model.FrequencyMonthly, day: 30,
			asOf: "2023-02-27", wantPeriod: "2023-02", wantOn: "2023-02-28", wantDue: false,
		},
		{
			name: "yearly first eligible day of the year", frequency: model.FrequencyYearly, day: 15,
			asOf: "2024-01-15", wantPeriod: "2024", wantOn: "2024-01-15", wantDue: true,
		},
		{
			name: "yearly already ran", frequency: model.FrequencyYearly, day: 15, last: ptr("2024"),
			asOf: "2024-06-20", wantPeriod: "2024", wantOn: "2024-06-15", wantDue: false,
		},
		{
			name: "yearly new year", frequency: model.FrequencyYearly, day: 1, last: ptr("2023"),
			asOf: "2024-01-01", wantPeriod: "2024", wantOn: "2024-01-01", wantDue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := model.RecurringExpenseRule{
				Frequency:              tt.frequency,
				DayOfPeriod:            tt.day,
				LastMaterializedPeriod: tt.last,
			}
			period, on, due := Due(rule, date(tt.asOf))
			assert.Equal(t, tt.wantPeriod, period)
			assert.Equal(t, date(tt.wantOn), on)
			assert.Equal(t, tt.wantDue, due)
		})
	}
}

func createRule(t *testing.T, env *testEnv, frequency model.Frequency, day int, amount string) *model.RecurringExpenseRule {
	t.Helper()
	rule := &model.RecurringExpenseRule{
		Description: "Hosting",
		Amount:      dec(amount),
		Category:    "infrastructure",
		Frequency:   frequency,
		DayOfPeriod: day,
	}
	require.NoError(t, env.scheduler.CreateRule(context.Background(), rule))
	return rule
}

func TestScheduler_MonthlyRuleMaterializesOncePerPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rule := createRule(t, env, model.FrequencyMonthly, 1, "50")

	report, err := env.scheduler.EvaluateAll(ctx, date("2024-03-05"))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeMaterialized, report.Results[0].Outcome)
	expenses := report.Expenses()
	require.Len(t, expenses, 1)
	assert.True(t, expenses[0].Amount.Equal(dec("50")))
	assert.Equal(t, date("2024-03-01"), expenses[0].Date)

	got, err := env.scheduler.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", *got.LastMaterializedPeriod)

	report, err = env.scheduler.EvaluateAll(ctx, date("2024-03-20"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, report.Results[0].Outcome)

	// A stale copy of the rule loses the guard instead of duplicating.
	report, err = env.scheduler.Evaluate(ctx, []model.RecurringExpenseRule{*rule}, date("2024-03-20"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMaterialized, report.Results[0].Outcome)

	all, err := env.store.ListExpenses(ctx, service.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScheduler_Day31InThirtyDayMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	createRule(t, env, model.FrequencyMonthly, 31, "20")

	report, err := env.scheduler.EvaluateAll(ctx, date("2024-04-29"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, report.Results[0].Outcome)

	report, err = env.scheduler.EvaluateAll(ctx, date("2024-04-30"))
	require.NoError(t, err)
	expenses := report.Expenses()
	require.Len(t, expenses, 1)
	assert.Equal(t, date("2024-04-30"), expenses[0].Date)
	assert.Equal(t, "2024-04", *expenses[0].OriginPeriod)

	// May is still its own period and fires on the 31st.
	report, err = env.scheduler.EvaluateAll(ctx, date("2024-05-01"))
	require.NoError(t, err)
	assert.Empty(t, report.Expenses())
}

func TestScheduler_ConcurrentSessionsMaterializeOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	sessions := []*testEnv{newTestEnvAt(t, dbPath), newTestEnvAt(t, dbPath), newTestEnvAt(t, dbPath)}
	ctx := context.Background()

	createRule(t, sessions[0], model.FrequencyMonthly, 1, "50")
	createRule(t, sessions[0], model.FrequencyYearly, 1, "600")

	var (
		mu       sync.Mutex
		reports  []*EvaluationReport
		failures []error
		wg       conc.WaitGroup
	)
	for _, env := range sessions {
		for i := 0; i < 4; i++ {
			wg.Go(func() {
				report, err := env.scheduler.EvaluateAll(ctx, date("2024-03-05"))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				reports = append(reports, report)
			})
		}
	}
	wg.Wait()
	require.Empty(t, failures)

	materialized := 0
	for _, r := range reports {
		materialized += r.Count(OutcomeMaterialized)
	}
	assert.Equal(t, 2, materialized)

	expenses, err := sessions[1].store.ListExpenses(ctx, service.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, expenses, 2)
}

// flakyRuleStore fails or panics for chosen rules.
type flakyRuleStore struct {
	service.RuleStore
	failRule  string
	panicRule string
	stored    []string
}

func (f *flakyRuleStore) MaterializeRule(_ context.Context, ruleID, period string, expense *model.Expense) error {
	switch ruleID {
	case f.failRule:
		return errors.New("disk full")
	case f.panicRule:
		panic("corrupt rule")
	}
	expense.OriginRuleID = &ruleID
	expense.OriginPeriod = &period
	f.stored = append(f.stored, ruleID)
	return nil
}

func TestScheduler_RuleFailuresAreIsolated(t *testing.T) {
	store := &flakyRuleStore{failRule: "rule_fail", panicRule: "rule_panic"}
	scheduler := NewScheduler(store)

	rules := []model.RecurringExpenseRule{
		{ID: "rule_fail", Description: "a", Category: "c", Amount: dec("1"), Frequency: model.FrequencyMonthly, DayOfPeriod: 1},
		{ID: "rule_panic", Description: "b", Category: "c", Amount: dec("1"), Frequency: model.FrequencyMonthly, DayOfPeriod: 1},
		{ID: "rule_ok", Description: "c", Category: "c", Amount: dec("1"), Frequency: model.FrequencyMonthly, DayOfPeriod: 1},
	}

	report, err := scheduler.Evaluate(context.Background(), rules, date("2024-03-05"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule_fail")
	assert.Contains(t, err.Error(), "rule_panic")

	require.Len(t, report.Results, 3)
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Equal(t, OutcomeFailed, report.Results[1].Outcome)
	assert.Equal(t, OutcomeMaterialized, report.Results[2].Outcome)
	assert.Equal(t, []string{"rule_ok"}, store.stored)
}

func TestScheduler_CreateRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.scheduler.CreateRule(ctx, &model.RecurringExpenseRule{
		Description: "Hosting",
		Amount:      dec("0"),
		Category:    "infrastructure",
		Frequency:   model.FrequencyMonthly,
		DayOfPeriod: 1,
	})
	assert.True(t, common.IsValidation(err))

	err = env.scheduler.CreateRule(ctx, &model.RecurringExpenseRule{
		Description: "Hosting",
		Amount:      dec("10"),
		Category:    "infrastructure",
		Frequency:   model.Frequency("weekly"),
		DayOfPeriod: 1,
	})
	assert.True(t, common.IsValidation(err))

	rules, err := env.scheduler.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestScheduler_DeleteRuleKeepsExpenses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rule := createRule(t, env, model.FrequencyYearly, 1, "120")
	_, err := env.scheduler.EvaluateAll(ctx, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, env.scheduler.DeleteRule(ctx, rule.ID))

	expenses, err := env.store.ListExpenses(ctx, service.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.True(t, expenses[0].Recurring())
}
