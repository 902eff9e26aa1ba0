package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
)

// TimeEntryStatus is the billing state of a logged work item.
type TimeEntryStatus string

const (
	// TimeEntryUnbilled entries are free to be invoiced.
	TimeEntryUnbilled TimeEntryStatus = "unbilled"
	// TimeEntryBilled entries are locked to an invoice.
	TimeEntryBilled TimeEntryStatus = "billed"
	// TimeEntryPaid entries belong to a paid invoice.
	TimeEntryPaid TimeEntryStatus = "paid"
)

// Valid reports whether s is a known status.
func (s TimeEntryStatus) Valid() bool {
	switch s {
	case TimeEntryUnbilled, TimeEntryBilled, TimeEntryPaid:
		return true
	}
	return false
}

// TimeEntry is a logged block of work.
// InvoiceID is set iff Status is not unbilled.
type TimeEntry struct {
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Rate            *decimal.Decimal
	InvoiceID       *string
	ID              string
	ClientReference string
	Description     string
	Status          TimeEntryStatus
	Hours           decimal.Decimal
	Billable        bool
}

// Invoiceable reports whether the entry may be put on a new invoice.
func (e *TimeEntry) Invoiceable() bool {
	return e.Billable && e.Status == TimeEntryUnbilled && e.InvoiceID == nil
}

// EffectiveRate returns the rate override, or fallback when none is set.
func (e *TimeEntry) EffectiveRate(fallback decimal.Decimal) decimal.Decimal {
	if e.Rate != nil {
		return *e.Rate
	}
	return fallback
}

// Validate checks the fields a caller supplies when logging time.
func (e *TimeEntry) Validate() error {
	if e.Hours.IsNegative() {
		return common.NewErrorf("hours must not be negative, got %s", e.Hours).
			WithEntity("time_entry", e.ID).
			Mark(common.ErrValidation)
	}
	if e.Rate != nil && e.Rate.IsNegative() {
		return common.Validationf("rate must not be negative, got %s", *e.Rate)
	}
	if e.Date.IsZero() {
		return common.Validationf("date is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return common.Validationf("description is required")
	}
	if strings.TrimSpace(e.ClientReference) == "" {
		return common.Validationf("client reference is required")
	}
	if !e.Status.Valid() {
		return common.Validationf("invalid time entry status %q", e.Status)
	}
	if (e.Status == TimeEntryUnbilled) != (e.InvoiceID == nil) {
		return common.NewErrorf("invoice reference must be set exactly when the entry is billed or paid").
			WithEntity("time_entry", e.ID).
			Mark(common.ErrValidation)
	}
	return nil
}

// TimeEntryChanges holds the editable fields of an entry. Nil fields are left
// untouched.
type TimeEntryChanges struct {
	Date        *time.Time
	Description *string
	Hours       *decimal.Decimal
	Rate        *decimal.Decimal
	Billable    *bool
	ClearRate   bool
}

// Apply copies the changes onto e.
func (c TimeEntryChanges) Apply(e *TimeEntry) {
	if c.Date != nil {
		e.Date = *c.Date
	}
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.Hours != nil {
		e.Hours = *c.Hours
	}
	if c.ClearRate {
		e.Rate = nil
	} else if c.Rate != nil {
		r := *c.Rate
		e.Rate = &r
	}
	if c.Billable != nil {
		e.Billable = *c.Billable
	}
}
