// Package testutil provides a migrated ledger database and fixture builders
// for tests of the packages above storage.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
)

// DefaultSettings is the settings record SetupTestDB seeds.
func DefaultSettings() *model.Settings {
	return &model.Settings{
		InvoicePrefix:     "INV-",
		BusinessName:      "Tally Consulting",
		DefaultHourlyRate: decimal.NewFromInt(100),
		PaymentTermsDays:  30,
	}
}

// TestDB is a migrated ledger living in the test's temp directory.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	// Settings replaces DefaultSettings.
	Settings *model.Settings
	// CustomSetup runs after migration and seeding.
	CustomSetup func(context.Context, *storage.SQLiteStorage) error
	// Path overrides the database file, e.g. to share it between two
	// handles.
	Path         string
	SkipSettings bool
}

// SetupTestDB opens a ledger with the default settings. It is closed when
// the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions opens a ledger configured by opts.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()
	ctx := context.Background()

	path := opts.Path
	if path == "" {
		path = filepath.Join(t.TempDir(), "tally.db")
	}

	store, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx), "failed to run migrations")

	if !opts.SkipSettings {
		settings := opts.Settings
		if settings == nil {
			settings = DefaultSettings()
		}
		require.NoError(t, store.SaveSettings(ctx, settings), "failed to seed settings")
	}

	if opts.CustomSetup != nil {
		require.NoError(t, opts.CustomSetup(ctx, store), "custom setup failed")
	}

	return &TestDB{Storage: store, t: t}
}

// WithTransaction runs fn in a transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}
