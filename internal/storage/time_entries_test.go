package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

func TestSQLiteStorage_CreateTimeEntry(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	rate := dec("120.50")
	entry := &model.TimeEntry{
		ClientReference: "acme",
		Date:            date("2024-03-01"),
		Hours:           dec("2.25"),
		Description:     "API review",
		Billable:        true,
		Rate:            &rate,
	}
	require.NoError(t, store.CreateTimeEntry(ctx, entry))
	assert.Contains(t, entry.ID, model.PrefixTimeEntry+"_")

	got, err := store.GetTimeEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TimeEntryUnbilled, got.Status)
	assert.True(t, got.Hours.Equal(dec("2.25")))
	require.NotNil(t, got.Rate)
	assert.True(t, got.Rate.Equal(rate))
	assert.Equal(t, date("2024-03-01"), got.Date)
	assert.Nil(t, got.InvoiceID)
	assert.True(t, got.Billable)
}

func TestSQLiteStorage_CreateTimeEntryValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	negative := dec("-1")
	tests := []struct {
		entry *model.TimeEntry
		name  string
	}{
		{
			name:  "negative hours",
			entry: &model.TimeEntry{ClientReference: "acme", Date: date("2024-03-01"), Hours: dec("-0.5"), Description: "x"},
		},
		{
			name:  "negative rate",
			entry: &model.TimeEntry{ClientReference: "acme", Date: date("2024-03-01"), Hours: dec("1"), Description: "x", Rate: &negative},
		},
		{
			name:  "missing description",
			entry: &model.TimeEntry{ClientReference: "acme", Date: date("2024-03-01"), Hours: dec("1")},
		},
		{
			name:  "missing date",
			entry: &model.TimeEntry{ClientReference: "acme", Hours: dec("1"), Description: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateTimeEntry(ctx, tt.entry)
			require.Error(t, err)
			assert.True(t, common.IsValidation(err), "got %v", err)
		})
	}

	entries, err := store.ListTimeEntries(ctx, timeEntryFilterAll())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStorage_GetTimeEntries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := createTestEntry(t, store, "acme", "2024-03-01", "1")
	b := createTestEntry(t, store, "acme", "2024-03-02", "2")

	entries, err := store.GetTimeEntries(ctx, []string{b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, b.ID, entries[0].ID)
	assert.Equal(t, a.ID, entries[1].ID)

	_, err = store.GetTimeEntries(ctx, []string{a.ID, "te_missing"})
	assert.True(t, common.IsNotFound(err))

	_, err = store.GetTimeEntries(ctx, []string{a.ID, a.ID})
	assert.True(t, common.IsValidation(err))
}

func TestSQLiteStorage_UpdateTimeEntry(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("unbilled entry accepts every edit", func(t *testing.T) {
		entry := createTestEntry(t, store, "acme", "2024-03-01", "1")
		entry.Hours = dec("1.75")
		entry.Billable = false
		require.NoError(t, store.UpdateTimeEntry(ctx, entry))

		got, err := store.GetTimeEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, got.Hours.Equal(dec("1.75")))
		assert.False(t, got.Billable)
	})

	t.Run("billed entry keeps its billable flag", func(t *testing.T) {
		entry := createTestEntry(t, store, "acme", "2024-03-02", "2")
		invoice := createTestInvoice(t, store, "INV-10", entry)

		billed, err := store.GetTimeEntry(ctx, entry.ID)
		require.NoError(t, err)

		billed.Description = "corrected description"
		require.NoError(t, store.UpdateTimeEntry(ctx, billed))

		billed.Billable = false
		err = store.UpdateTimeEntry(ctx, billed)
		require.Error(t, err)
		assert.True(t, common.IsConflict(err))

		got, err := store.GetTimeEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "corrected description", got.Description)
		assert.True(t, got.Billable)
		assert.Equal(t, model.TimeEntryBilled, got.Status)

		// The invoice line is a snapshot.
		inv, err := store.GetInvoice(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, "work on 2024-03-02", inv.LineItems[1].Description)
	})

	t.Run("missing entry", func(t *testing.T) {
		err := store.UpdateTimeEntry(ctx, &model.TimeEntry{
			ID:              "te_missing",
			ClientReference: "acme",
			Date:            date("2024-03-01"),
			Hours:           decimal.NewFromInt(1),
			Description:     "x",
			Status:          model.TimeEntryUnbilled,
		})
		assert.True(t, common.IsNotFound(err))
	})
}

func TestSQLiteStorage_DeleteTimeEntry(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	free := createTestEntry(t, store, "acme", "2024-03-01", "1")
	locked := createTestEntry(t, store, "acme", "2024-03-02", "1")
	createTestInvoice(t, store, "INV-1", locked)

	require.NoError(t, store.DeleteTimeEntry(ctx, free.ID))
	_, err := store.GetTimeEntry(ctx, free.ID)
	assert.True(t, common.IsNotFound(err))

	err = store.DeleteTimeEntry(ctx, locked.ID)
	assert.True(t, common.IsConflict(err))

	err = store.DeleteTimeEntry(ctx, "te_missing")
	assert.True(t, common.IsNotFound(err))
}

func TestSQLiteStorage_MarkTimeEntriesBilled(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("moves all entries", func(t *testing.T) {
		a := createTestEntry(t, store, "acme", "2024-03-01", "3")
		b := createTestEntry(t, store, "acme", "2024-03-02", "2")
		invoice := createTestInvoice(t, store, "INV-1")

		require.NoError(t, store.MarkTimeEntriesBilled(ctx, []string{a.ID, b.ID}, invoice.ID))

		entries, err := store.GetTimeEntries(ctx, []string{a.ID, b.ID})
		require.NoError(t, err)
		for _, e := range entries {
			assert.Equal(t, model.TimeEntryBilled, e.Status)
			require.NotNil(t, e.InvoiceID)
			assert.Equal(t, invoice.ID, *e.InvoiceID)
		}
	})

	t.Run("double billing is a conflict and changes nothing", func(t *testing.T) {
		billed := createTestEntry(t, store, "acme", "2024-03-03", "1")
		fresh := createTestEntry(t, store, "acme", "2024-03-04", "1")
		first := createTestInvoice(t, store, "INV-2", billed)
		second := createTestInvoice(t, store, "INV-3")

		err := store.MarkTimeEntriesBilled(ctx, []string{fresh.ID, billed.ID}, second.ID)
		require.Error(t, err)
		assert.True(t, common.IsConflict(err))
		assert.Contains(t, common.Entities(err), "time_entry="+billed.ID)

		got, err := store.GetTimeEntry(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TimeEntryUnbilled, got.Status)

		got, err = store.GetTimeEntry(ctx, billed.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, *got.InvoiceID)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		e := createTestEntry(t, store, "acme", "2024-03-05", "1")
		err := store.MarkTimeEntriesBilled(ctx, []string{e.ID}, "inv_missing")
		assert.True(t, common.IsNotFound(err))
	})

	t.Run("unknown entry", func(t *testing.T) {
		invoice := createTestInvoice(t, store, "INV-4")
		err := store.MarkTimeEntriesBilled(ctx, []string{"te_missing"}, invoice.ID)
		assert.True(t, common.IsNotFound(err))
	})
}
