package sheets

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/billing"
	"github.com/Veraticus/tally/internal/model"
)

// ReportWriter publishes a financial report somewhere outside the ledger.
type ReportWriter interface {
	Write(ctx context.Context, data ReportData) error
}

// ReportData is everything one export needs.
type ReportData struct {
	GeneratedAt time.Time
	Report      billing.Report
	Invoices    []model.Invoice
	Expenses    []model.Expense
}

// InvoiceRow is a single row of the invoices section.
type InvoiceRow struct {
	IssueDate time.Time
	DueDate   time.Time
	Number    string
	Client    string
	Status    string
	Total     decimal.Decimal
}

// ExpenseRow is a single row of the expenses section.
type ExpenseRow struct {
	Date        time.Time
	Description string
	Category    string
	Source      string
	Amount      decimal.Decimal
}

// Rows converts the invoices and expenses of data that fall inside the
// report period, newest first.
func (d ReportData) Rows() ([]InvoiceRow, []ExpenseRow) {
	invoices := make([]InvoiceRow, 0, len(d.Invoices))
	for _, inv := range d.Invoices {
		if !d.Report.Period.Contains(inv.IssueDate) {
			continue
		}
		invoices = append(invoices, InvoiceRow{
			IssueDate: inv.IssueDate,
			DueDate:   inv.DueDate,
			Number:    inv.Number,
			Client:    inv.ClientReference,
			Status:    string(inv.Status),
			Total:     inv.Total,
		})
	}

	expenses := make([]ExpenseRow, 0, len(d.Expenses))
	for _, e := range d.Expenses {
		if !d.Report.Period.Contains(e.Date) {
			continue
		}
		source := "one-time"
		if e.Recurring() {
			source = "recurring " + *e.OriginPeriod
		}
		expenses = append(expenses, ExpenseRow{
			Date:        e.Date,
			Description: e.Description,
			Category:    e.Category,
			Source:      source,
			Amount:      e.Amount,
		})
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].IssueDate.After(invoices[j].IssueDate)
	})
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.After(expenses[j].Date)
	})
	return invoices, expenses
}
