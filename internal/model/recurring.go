package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
)

// Frequency is how often a recurring rule fires.
type Frequency string

const (
	// FrequencyMonthly rules fire once per calendar month.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly rules fire once per calendar year.
	FrequencyYearly Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyYearly
}

// PeriodKey returns the calendar bucket containing t: "2006-01" for monthly
// rules and "2006" for yearly ones. Keys of one frequency sort in time order.
func (f Frequency) PeriodKey(t time.Time) string {
	if f == FrequencyYearly {
		return t.Format("2006")
	}
	return t.Format("2006-01")
}

// RecurringExpenseRule is a standing cost that materializes one Expense per
// period. It is only ever mutated by advancing LastMaterializedPeriod.
type RecurringExpenseRule struct {
	CreatedAt              time.Time
	LastMaterializedPeriod *string
	ID                     string
	Description            string
	Category               string
	Frequency              Frequency
	Amount                 decimal.Decimal
	DayOfPeriod            int
}

// EffectiveDay clamps DayOfPeriod to the length of the month containing t,
// so day 31 lands on the 30th, 29th or 28th in shorter months.
func (r *RecurringExpenseRule) EffectiveDay(t time.Time) int {
	return min(r.DayOfPeriod, DaysInMonth(t.Year(), t.Month()))
}

// Validate checks a rule before it is stored.
func (r *RecurringExpenseRule) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return common.Validationf("rule description is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return common.Validationf("rule category is required")
	}
	if !r.Amount.IsPositive() {
		return common.Validationf("rule amount must be positive, got %s", r.Amount)
	}
	if !r.Frequency.Valid() {
		return common.Validationf("invalid frequency %q", r.Frequency)
	}
	if r.DayOfPeriod < 1 || r.DayOfPeriod > 31 {
		return common.Validationf("day of period must be between 1 and 31, got %d", r.DayOfPeriod)
	}
	return nil
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout is the storage and display layout for calendar dates.
const DateLayout = "2006-01-02"
