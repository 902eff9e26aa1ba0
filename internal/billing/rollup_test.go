package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
)

func rollupFixtures() ([]model.Invoice, []model.Expense) {
	invoices := []model.Invoice{
		{Number: "INV-1", Status: model.InvoicePaid, Total: dec("1200"), IssueDate: date("2024-03-05")},
		{Number: "INV-2", Status: model.InvoicePaid, Total: dec("300.50"), IssueDate: date("2024-03-20")},
		{Number: "INV-3", Status: model.InvoiceSent, Total: dec("800"), IssueDate: date("2024-03-25")},
		{Number: "INV-4", Status: model.InvoiceDraft, Total: dec("50"), IssueDate: date("2024-03-28")},
		{Number: "INV-5", Status: model.InvoicePaid, Total: dec("999"), IssueDate: date("2024-02-10")},
	}
	expenses := []model.Expense{
		{Date: date("2024-03-01"), Amount: dec("50"), Category: "infrastructure", OriginRuleID: ptr("rule_1"), OriginPeriod: ptr("2024-03")},
		{Date: date("2024-03-12"), Amount: dec("89.99"), Category: "equipment"},
		{Date: date("2024-03-15"), Amount: dec("20"), Category: "infrastructure"},
		{Date: date("2024-04-01"), Amount: dec("50"), Category: "infrastructure", OriginPeriod: ptr("2024-04")},
	}
	return invoices, expenses
}

func TestTotals(t *testing.T) {
	invoices, expenses := rollupFixtures()
	march := service.DateRange{Start: date("2024-03-01"), End: date("2024-03-31")}

	income := TotalIncome(invoices)
	assert.True(t, income.Equal(dec("2499.50")), "income %s", income)

	spent := TotalExpenses(expenses, march)
	assert.True(t, spent.Equal(dec("159.99")), "expenses %s", spent)

	assert.True(t, TotalExpenses(expenses, service.DateRange{}).Equal(dec("209.99")))
	assert.True(t, NetProfit(income, spent).Equal(dec("2339.51")))
	assert.True(t, TotalIncome(nil).IsZero())
}

func TestSummarize(t *testing.T) {
	invoices, expenses := rollupFixtures()
	march := service.DateRange{Start: date("2024-03-01"), End: date("2024-03-31")}

	report := Summarize(invoices, expenses, march)

	assert.True(t, report.Income.Equal(dec("1500.50")), "income %s", report.Income)
	assert.True(t, report.Outstanding.Equal(dec("800")))
	assert.True(t, report.Expenses.Equal(dec("159.99")))
	assert.True(t, report.Recurring.Equal(dec("50")))
	assert.True(t, report.NetProfit.Equal(dec("1340.51")))
	assert.Equal(t, 2, report.PaidCount)
	assert.Equal(t, 1, report.OpenCount)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, "equipment", report.Categories[0].Category)
	assert.True(t, report.Categories[0].Amount.Equal(dec("89.99")))
	assert.Equal(t, "infrastructure", report.Categories[1].Category)
	assert.Equal(t, 2, report.Categories[1].Count)
	assert.True(t, report.Categories[1].Amount.Equal(dec("70")))
}

func TestSummarize_Empty(t *testing.T) {
	report := Summarize(nil, nil, service.DateRange{})
	assert.True(t, report.Income.IsZero())
	assert.True(t, report.Expenses.IsZero())
	assert.True(t, report.NetProfit.IsZero())
	assert.Empty(t, report.Categories)
}

func TestSummarize_StoredLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	fx := testutil.NewBuilder(t).
		WithTime("acme", "2024-03-01", "3").
		WithExpense("software", "2024-03-02", "49.99").
		WithMonthlyRule("hosting", "20", 1).
		Build(env.store)

	_, err := env.scheduler.EvaluateAll(ctx, date("2024-03-15"))
	require.NoError(t, err)

	invoice, err := env.assembler.CreateInvoice(ctx, CreateInvoiceRequest{
		ClientReference: "acme",
		IssueDate:       date("2024-03-10"),
		TimeEntryIDs:    []string{fx.TimeEntries[0].ID},
	})
	require.NoError(t, err)
	_, err = env.assembler.UpdateStatus(ctx, invoice.ID, model.InvoicePaid)
	require.NoError(t, err)

	invoices, err := env.store.ListInvoices(ctx, service.InvoiceFilter{})
	require.NoError(t, err)
	expenses, err := env.store.ListExpenses(ctx, service.ExpenseFilter{})
	require.NoError(t, err)

	report := Summarize(invoices, expenses, service.DateRange{Start: date("2024-03-01"), End: date("2024-03-31")})
	assert.Equal(t, "300", report.Income.String())
	assert.Equal(t, "69.99", report.Expenses.String())
	assert.Equal(t, "20", report.Recurring.String())
	assert.Equal(t, "230.01", report.NetProfit.String())
}
