package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	a := NewID(PrefixInvoice)
	b := NewID(PrefixInvoice)
	assert.True(t, strings.HasPrefix(a, "inv_"))
	assert.Len(t, a, len("inv_")+26)
	assert.NotEqual(t, a, b)
}

func TestFrequency_PeriodKey(t *testing.T) {
	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03", FrequencyMonthly.PeriodKey(at))
	assert.Equal(t, "2024", FrequencyYearly.PeriodKey(at))
	assert.Less(t, FrequencyMonthly.PeriodKey(at), FrequencyMonthly.PeriodKey(at.AddDate(0, 7, 0)))
}

func TestRecurringExpenseRule_EffectiveDay(t *testing.T) {
	rule := RecurringExpenseRule{DayOfPeriod: 31}
	tests := []struct {
		month time.Month
		year  int
		want  int
	}{
		{month: time.January, year: 2024, want: 31},
		{month: time.February, year: 2024, want: 29},
		{month: time.February, year: 2023, want: 28},
		{month: time.April, year: 2024, want: 30},
	}
	for _, tt := range tests {
		at := time.Date(tt.year, tt.month, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, tt.want, rule.EffectiveDay(at), "%s %d", tt.month, tt.year)
	}
}

func TestInvoice_Recompute(t *testing.T) {
	entry := "te_1"
	invoice := Invoice{
		LineItems: []InvoiceLineItem{
			{Description: "a", Quantity: decimal.RequireFromString("3"), UnitPrice: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("1")},
			{Description: "b", Quantity: decimal.RequireFromString("0.25"), UnitPrice: decimal.RequireFromString("80"), SourceTimeEntryID: &entry},
		},
		Total: decimal.RequireFromString("12345"),
	}
	invoice.Recompute()

	assert.True(t, invoice.LineItems[0].Amount.Equal(decimal.NewFromInt(300)))
	assert.True(t, invoice.LineItems[1].Amount.Equal(decimal.NewFromInt(20)))
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(320)))
	assert.Equal(t, 1, invoice.LineItems[0].Position)
	assert.Equal(t, 2, invoice.LineItems[1].Position)
	assert.Equal(t, []string{"te_1"}, invoice.TimeEntryIDs())
}

func TestInvoiceStatus_EntryStatus(t *testing.T) {
	assert.Equal(t, TimeEntryBilled, InvoiceDraft.EntryStatus())
	assert.Equal(t, TimeEntryBilled, InvoiceSent.EntryStatus())
	assert.Equal(t, TimeEntryPaid, InvoicePaid.EntryStatus())
	assert.False(t, InvoiceStatus("void").Valid())
}

func TestTimeEntry_Validate(t *testing.T) {
	invoice := "inv_1"
	valid := func() TimeEntry {
		return TimeEntry{
			ClientReference: "acme",
			Date:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Hours:           decimal.NewFromInt(2),
			Description:     "x",
			Status:          TimeEntryUnbilled,
		}
	}

	tests := []struct {
		mutate  func(*TimeEntry)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*TimeEntry) {}},
		{name: "zero hours allowed", mutate: func(e *TimeEntry) { e.Hours = decimal.Zero }},
		{name: "negative hours", mutate: func(e *TimeEntry) { e.Hours = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "billed without invoice", mutate: func(e *TimeEntry) { e.Status = TimeEntryBilled }, wantErr: true},
		{name: "unbilled with invoice", mutate: func(e *TimeEntry) { e.InvoiceID = &invoice }, wantErr: true},
		{name: "billed with invoice", mutate: func(e *TimeEntry) { e.Status = TimeEntryBilled; e.InvoiceID = &invoice }},
		{name: "unknown status", mutate: func(e *TimeEntry) { e.Status = "void" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimeEntry_EffectiveRate(t *testing.T) {
	fallback := decimal.NewFromInt(100)
	e := TimeEntry{}
	assert.True(t, e.EffectiveRate(fallback).Equal(fallback))

	rate := decimal.NewFromInt(140)
	e.Rate = &rate
	assert.True(t, e.EffectiveRate(fallback).Equal(rate))
}

func TestExpense_Validate(t *testing.T) {
	rule, period := "rule_1", "2024-03"
	e := Expense{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Hosting",
		Amount:      decimal.NewFromInt(50),
		Category:    "infrastructure",
	}
	assert.NoError(t, e.Validate())

	e.OriginRuleID = &rule
	assert.Error(t, e.Validate())
	e.OriginPeriod = &period
	assert.NoError(t, e.Validate())
	assert.True(t, e.Recurring())

	e.Amount = decimal.Zero
	assert.Error(t, e.Validate())
}
