package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "~/.local/share/tally/tally.db"

// Config is the typed view of the tally configuration.
type Config struct {
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Timer     TimerConfig     `mapstructure:"timer"`
	Recurring RecurringConfig `mapstructure:"recurring"`
}

// DatabaseConfig locates the ledger.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// BillingConfig seeds the settings record.
type BillingConfig struct {
	InvoicePrefix     string `mapstructure:"invoice_prefix" validate:"required,max=32"`
	BusinessName      string `mapstructure:"business_name"`
	DefaultHourlyRate string `mapstructure:"default_hourly_rate" validate:"required,numeric"`
	SequenceStart     int64  `mapstructure:"sequence_start" validate:"gte=0"`
	PaymentTermsDays  int    `mapstructure:"payment_terms_days" validate:"gte=0,lte=365"`
}

// TimerConfig controls duration rounding.
type TimerConfig struct {
	IncrementMinutes int `mapstructure:"increment_minutes" validate:"gte=1,lte=60"`
}

// RecurringConfig controls automatic rule evaluation.
type RecurringConfig struct {
	AutoEvaluate bool `mapstructure:"auto_evaluate"`
}

// LoggingConfig mirrors the --log-level and --log-format flags.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SheetsConfig holds the Google Sheets export credentials.
type SheetsConfig struct {
	ServiceAccountPath string `mapstructure:"service_account_path"`
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	TokenFile          string `mapstructure:"token_file"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SpreadsheetName    string `mapstructure:"spreadsheet_name"`
	TimeZone           string `mapstructure:"time_zone"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("billing.invoice_prefix", "INV-")
	v.SetDefault("billing.business_name", "")
	v.SetDefault("billing.sequence_start", 1)
	v.SetDefault("billing.default_hourly_rate", "0")
	v.SetDefault("billing.payment_terms_days", 30)
	v.SetDefault("timer.increment_minutes", 15)
	v.SetDefault("recurring.auto_evaluate", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.token_file", "~/.config/tally/sheets-token.json")
	v.SetDefault("sheets.spreadsheet_name", "Tally Report")
	v.SetDefault("sheets.time_zone", "UTC")
}

// Load decodes and validates the configuration held by v. Paths have ~ and
// environment variables expanded.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, common.WithError(err).Mark(common.ErrInvalidConfig)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)
	cfg.Sheets.TokenFile = ExpandPath(cfg.Sheets.TokenFile)

	if err := common.ValidateStruct(&cfg); err != nil {
		return nil, common.WithError(err).
			WithHint("fix the configuration file or the matching TALLY_ environment variable").
			Mark(common.ErrInvalidConfig)
	}
	return &cfg, nil
}

// Settings is the settings record seeded from the billing section.
func (c *Config) Settings() (*model.Settings, error) {
	rate, err := decimal.NewFromString(c.Billing.DefaultHourlyRate)
	if err != nil {
		return nil, common.NewErrorf("invalid billing.default_hourly_rate %q", c.Billing.DefaultHourlyRate).
			Mark(common.ErrInvalidConfig)
	}
	return &model.Settings{
		InvoicePrefix:     c.Billing.InvoicePrefix,
		BusinessName:      c.Billing.BusinessName,
		DefaultHourlyRate: rate,
		PaymentTermsDays:  c.Billing.PaymentTermsDays,
	}, nil
}

// Increment is the timer rounding increment.
func (c *Config) Increment() time.Duration {
	return time.Duration(c.Timer.IncrementMinutes) * time.Minute
}
