package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// GetSettings returns the settings record. NextInvoiceSeq is read from the
// counter of the configured prefix and is zero before the first allocation.
func (s *SQLiteStorage) GetSettings(ctx context.Context) (*model.Settings, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var settings model.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT s.invoice_prefix, s.business_name, s.default_hourly_rate, s.payment_terms_days,
			COALESCE((SELECT c.next_value FROM sequence_counters c WHERE c.prefix = s.invoice_prefix), 0)
		FROM settings s
		WHERE s.id = 1`,
	).Scan(&settings.InvoicePrefix, &settings.BusinessName, &settings.DefaultHourlyRate,
		&settings.PaymentTermsDays, &settings.NextInvoiceSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewError("settings have not been initialized").
			WithHint("run any tally command with a config file to seed them").
			Mark(common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings writes the settings record. The invoice counter is not
// touched.
func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings *model.Settings) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if settings == nil {
		return fmt.Errorf("%w: settings", ErrNilParameter)
	}
	if strings.TrimSpace(settings.InvoicePrefix) == "" {
		return common.Validationf("invoice prefix is required")
	}
	if settings.DefaultHourlyRate.IsNegative() {
		return common.Validationf("default hourly rate must not be negative, got %s", settings.DefaultHourlyRate)
	}
	if settings.PaymentTermsDays < 0 {
		return common.Validationf("payment terms must not be negative, got %d", settings.PaymentTermsDays)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, invoice_prefix, business_name, default_hourly_rate, payment_terms_days)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			invoice_prefix = excluded.invoice_prefix,
			business_name = excluded.business_name,
			default_hourly_rate = excluded.default_hourly_rate,
			payment_terms_days = excluded.payment_terms_days`,
		settings.InvoicePrefix, settings.BusinessName, settings.DefaultHourlyRate, settings.PaymentTermsDays,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	slog.Debug("saved settings", "prefix", settings.InvoicePrefix, "rate", settings.DefaultHourlyRate.String())
	return nil
}
