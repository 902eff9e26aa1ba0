package billing

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// TotalIncome sums the totals of paid invoices.
func TotalIncome(invoices []model.Invoice) decimal.Decimal {
	return sumInvoices(invoices, model.InvoicePaid)
}

// TotalExpenses sums one-time and materialized expenses dated in period.
func TotalExpenses(expenses []model.Expense, period service.DateRange) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		if period.Contains(e.Date) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// NetProfit is income minus expenses.
func NetProfit(income, expenses decimal.Decimal) decimal.Decimal {
	return income.Sub(expenses)
}

func sumInvoices(invoices []model.Invoice, status model.InvoiceStatus) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Status == status {
			total = total.Add(inv.Total)
		}
	}
	return total
}

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
	Count    int
}

// Report is a profit summary for a date range.
type Report struct {
	Period      service.DateRange
	Categories  []CategoryTotal
	Income      decimal.Decimal
	Outstanding decimal.Decimal
	Expenses    decimal.Decimal
	Recurring   decimal.Decimal
	NetProfit   decimal.Decimal
	PaidCount   int
	OpenCount   int
}

// Summarize builds a Report. Invoices count toward the period by issue date:
// paid ones as income, sent ones as outstanding receivables.
func Summarize(invoices []model.Invoice, expenses []model.Expense, period service.DateRange) Report {
	inPeriod := lo.Filter(invoices, func(inv model.Invoice, _ int) bool {
		return period.Contains(inv.IssueDate)
	})
	spent := lo.Filter(expenses, func(e model.Expense, _ int) bool {
		return period.Contains(e.Date)
	})

	report := Report{
		Period:      period,
		Income:      TotalIncome(inPeriod),
		Outstanding: sumInvoices(inPeriod, model.InvoiceSent),
		Expenses:    TotalExpenses(spent, period),
		Recurring:   decimal.Zero,
		PaidCount:   lo.CountBy(inPeriod, func(inv model.Invoice) bool { return inv.Status == model.InvoicePaid }),
		OpenCount:   lo.CountBy(inPeriod, func(inv model.Invoice) bool { return inv.Status == model.InvoiceSent }),
	}
	report.NetProfit = NetProfit(report.Income, report.Expenses)

	byCategory := lo.GroupBy(spent, func(e model.Expense) string { return e.Category })
	for category, items := range byCategory {
		total := CategoryTotal{Category: category, Amount: decimal.Zero, Count: len(items)}
		for _, e := range items {
			total.Amount = total.Amount.Add(e.Amount)
			if e.Recurring() {
				report.Recurring = report.Recurring.Add(e.Amount)
			}
		}
		report.Categories = append(report.Categories, total)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		ci, cj := report.Categories[i], report.Categories[j]
		if !ci.Amount.Equal(cj.Amount) {
			return ci.Amount.GreaterThan(cj.Amount)
		}
		return ci.Category < cj.Category
	})
	return report
}
