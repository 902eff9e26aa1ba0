package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/Veraticus/tally/internal/testutil"
)

type testEnv struct {
	store     *storage.SQLiteStorage
	ledger    *TimeLedger
	scheduler *Scheduler
	sequencer *Sequencer
	assembler *Assembler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, filepath.Join(t.TempDir(), "tally.db"))
}

func newTestEnvAt(t *testing.T, dbPath string) *testEnv {
	t.Helper()
	store := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{Path: dbPath}).Storage

	sequencer := NewSequencer(store, 1000)
	return &testEnv{
		store:     store,
		ledger:    NewTimeLedger(store, 15*time.Minute),
		scheduler: NewScheduler(store),
		sequencer: sequencer,
		assembler: NewAssembler(store, store, sequencer),
	}
}

func (e *testEnv) logTime(t *testing.T, client, day, hours string) *model.TimeEntry {
	t.Helper()
	entry := &model.TimeEntry{
		ClientReference: client,
		Date:            date(day),
		Hours:           dec(hours),
		Description:     "work",
		Billable:        true,
	}
	require.NoError(t, e.ledger.LogTime(context.Background(), entry))
	return entry
}

func date(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}
