package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func TestSQLiteStorage_Expenses(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	receipt := "receipts/2024-03-02.pdf"
	items := []*model.Expense{
		{Date: date("2024-03-02"), Description: "Laptop stand", Amount: dec("89.99"), Category: "equipment", ReceiptReference: &receipt},
		{Date: date("2024-03-10"), Description: "Train", Amount: dec("42"), Category: "travel"},
		{Date: date("2024-04-01"), Description: "Taxi", Amount: dec("18.50"), Category: "travel"},
	}
	for _, e := range items {
		require.NoError(t, store.CreateExpense(ctx, e))
	}

	got, err := store.GetExpense(ctx, items[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("89.99")))
	require.NotNil(t, got.ReceiptReference)
	assert.Equal(t, receipt, *got.ReceiptReference)
	assert.False(t, got.Recurring())

	travel, err := store.ListExpenses(ctx, service.ExpenseFilter{Category: "travel"})
	require.NoError(t, err)
	require.Len(t, travel, 2)
	assert.Equal(t, items[2].ID, travel[0].ID)

	march, err := store.ListExpenses(ctx, service.ExpenseFilter{
		Range: service.DateRange{Start: date("2024-03-01"), End: date("2024-03-31")},
	})
	require.NoError(t, err)
	assert.Len(t, march, 2)

	require.NoError(t, store.DeleteExpense(ctx, items[1].ID))
	assert.True(t, common.IsNotFound(store.DeleteExpense(ctx, items[1].ID)))
}

func TestSQLiteStorage_CreateExpenseRejects(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("non-positive amount", func(t *testing.T) {
		err := store.CreateExpense(ctx, &model.Expense{
			Date: date("2024-03-01"), Description: "free", Amount: dec("0"), Category: "misc",
		})
		assert.True(t, common.IsValidation(err))
	})

	t.Run("duplicate external reference", func(t *testing.T) {
		ref := "ofx:abc123"
		first := &model.Expense{
			Date: date("2024-03-01"), Description: "Coffee", Amount: dec("4.20"), Category: "meals", ExternalReference: &ref,
		}
		require.NoError(t, store.CreateExpense(ctx, first))

		second := &model.Expense{
			Date: date("2024-03-01"), Description: "Coffee", Amount: dec("4.20"), Category: "meals", ExternalReference: &ref,
		}
		err := store.CreateExpense(ctx, second)
		require.Error(t, err)
		assert.True(t, common.IsConflict(err))
		assert.Contains(t, common.Hints(err), ref)
	})
}
