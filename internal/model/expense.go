package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
)

// Expense is a one-time or rule-materialized cost. Expenses are immutable
// once stored; they can only be deleted.
type Expense struct {
	Date              time.Time
	CreatedAt         time.Time
	ReceiptReference  *string
	OriginRuleID      *string
	OriginPeriod      *string
	ExternalReference *string
	ID                string
	Description       string
	Category          string
	Amount            decimal.Decimal
}

// Recurring reports whether the expense was materialized from a rule. The
// origin period outlives the rule itself.
func (e *Expense) Recurring() bool {
	return e.OriginPeriod != nil
}

// Validate checks an expense before it is stored.
func (e *Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return common.Validationf("expense amount must be positive, got %s", e.Amount)
	}
	if e.Date.IsZero() {
		return common.Validationf("expense date is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return common.Validationf("expense description is required")
	}
	if strings.TrimSpace(e.Category) == "" {
		return common.Validationf("expense category is required")
	}
	if (e.OriginRuleID == nil) != (e.OriginPeriod == nil) {
		return common.Validationf("origin rule and origin period must be set together")
	}
	return nil
}
