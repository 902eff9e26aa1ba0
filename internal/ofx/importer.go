package ofx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// ImportResult counts what an import did.
type ImportResult struct {
	Created    int
	Duplicates int
}

// Importer stores parsed statement expenses.
type Importer struct {
	store service.ExpenseStore
}

// NewImporter creates an importer writing to store.
func NewImporter(store service.ExpenseStore) *Importer {
	return &Importer{store: store}
}

// Import creates each expense. Lines already imported are counted as
// duplicates and skipped; any other failure stops the import. progress, when
// non-nil, is called once per processed expense.
func (i *Importer) Import(ctx context.Context, expenses []model.Expense, progress func()) (ImportResult, error) {
	var result ImportResult
	for idx := range expenses {
		expense := expenses[idx]
		err := i.store.CreateExpense(ctx, &expense)
		switch {
		case err == nil:
			result.Created++
		case common.IsConflict(err):
			result.Duplicates++
			slog.Debug("Skipping already imported expense",
				"reference", lo.FromPtr(expense.ExternalReference),
				"date", expense.Date.Format(model.DateLayout))
		default:
			return result, fmt.Errorf("failed to import %q: %w", expense.Description, err)
		}
		if progress != nil {
			progress()
		}
	}

	slog.Info("Imported expenses",
		"created", result.Created,
		"duplicates", result.Duplicates)
	return result, nil
}
