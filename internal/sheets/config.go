// Package sheets exports financial reports to Google Sheets.
package sheets

import (
	"time"

	"github.com/Veraticus/tally/internal/common"
)

// DefaultSpreadsheetName names spreadsheets created when no ID is configured.
const DefaultSpreadsheetName = "Tally Report"

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	TokenFile          string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		SpreadsheetName:  DefaultSpreadsheetName,
		TimeZone:         "UTC",
		BatchSize:        500,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// HasOAuth reports whether a complete set of OAuth2 credentials is present.
func (c *Config) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	hasServiceAccount := c.ServiceAccountPath != ""

	if !c.HasOAuth() && !hasServiceAccount {
		return common.NewError("no authentication method configured").
			WithHint("set sheets.service_account_path, or run `tally report auth` to obtain a refresh token").
			Mark(common.ErrInvalidConfig)
	}
	if c.HasOAuth() && hasServiceAccount {
		return common.NewError("multiple authentication methods configured; use either OAuth2 or service account").
			Mark(common.ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return common.NewErrorf("batch size must be positive, got %d", c.BatchSize).Mark(common.ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return common.NewError("retry attempts cannot be negative").Mark(common.ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return common.NewError("retry delay cannot be negative").Mark(common.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) retryOptions() common.RetryOptions {
	return common.RetryOptions{
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
