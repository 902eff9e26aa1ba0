package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/billing"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/storage"
)

// now is the clock every command reads the current date from.
var now = time.Now

// app bundles the ledger components one command invocation works with.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	ledger    *billing.TimeLedger
	scheduler *billing.Scheduler
	sequencer *billing.Sequencer
	assembler *billing.Assembler
}

// skipAutoEvaluate is the command annotation that opts out of materializing
// due recurring expenses on startup.
const skipAutoEvaluate = "tally/skip-auto-evaluate"

// openApp loads configuration, opens and migrates the ledger, seeds the
// settings record on first use and, when evaluate is set and the
// configuration allows it, materializes recurring expenses that have come due.
func openApp(ctx context.Context, evaluate bool) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		store:     store,
		ledger:    billing.NewTimeLedger(store, cfg.Increment()),
		scheduler: billing.NewScheduler(store),
		sequencer: billing.NewSequencer(store, cfg.Billing.SequenceStart),
	}
	a.assembler = billing.NewAssembler(store, store, a.sequencer)

	if err := a.seedSettings(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if evaluate && cfg.Recurring.AutoEvaluate {
		a.autoEvaluate(ctx)
	}
	return a, nil
}

// initStorage opens the database at dbPath, creating its directory, and
// brings the schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

func (a *app) seedSettings(ctx context.Context) error {
	_, err := a.store.GetSettings(ctx)
	if err == nil {
		return nil
	}
	if !common.IsNotFound(err) {
		return err
	}

	settings, err := a.cfg.Settings()
	if err != nil {
		return err
	}
	if err := a.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	if err := a.sequencer.EnsureStarted(ctx, settings.InvoicePrefix); err != nil {
		return fmt.Errorf("failed to seed invoice counter: %w", err)
	}
	slog.Info("Initialized settings from configuration",
		"prefix", settings.InvoicePrefix,
		"sequence_start", a.cfg.Billing.SequenceStart)
	return nil
}

// autoEvaluate is best effort: a failed rule is logged and the command
// carries on.
func (a *app) autoEvaluate(ctx context.Context) {
	report, err := a.scheduler.EvaluateAll(ctx, today())
	if err != nil {
		common.LogError(err, "Failed to evaluate recurring rules", nil)
	}
	if report == nil {
		return
	}
	if n := report.Count(billing.OutcomeMaterialized); n > 0 {
		slog.Info("Materialized recurring expenses", "count", n)
	}
}

func today() time.Time {
	return model.Day(now())
}

func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, skip := cmd.Annotations[skipAutoEvaluate]
		a, err := openApp(cmd.Context(), !skip)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func parseDate(value string) (time.Time, error) {
	switch strings.ToLower(value) {
	case "", "today":
		return today(), nil
	case "yesterday":
		return today().AddDate(0, 0, -1), nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, common.NewErrorf("invalid date %q", value).
			WithHint("use YYYY-MM-DD, today or yesterday").
			Mark(common.ErrValidation)
	}
	return t, nil
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(value), "$"))
	if err != nil {
		return decimal.Zero, common.Validationf("invalid %s %q", name, value)
	}
	return d, nil
}

// parseRange reads --from/--to style bounds; empty bounds stay open.
func parseRange(from, to string) (start, end time.Time, err error) {
	if from != "" {
		if start, err = parseDate(from); err != nil {
			return
		}
	}
	if to != "" {
		if end, err = parseDate(to); err != nil {
			return
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		err = common.Validationf("--to %s is before --from %s", to, from)
	}
	return
}

func outf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func outln(cmd *cobra.Command, line string) {
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
