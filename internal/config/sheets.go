package config

import (
	"os"

	"github.com/Veraticus/tally/internal/sheets"
)

// SheetsWriterConfig builds the Sheets writer configuration. Values missing
// from the config file fall back to the GOOGLE_SHEETS_* environment
// variables, then to a refresh token saved by `tally report auth`.
func (c *Config) SheetsWriterConfig() (sheets.Config, error) {
	cfg := sheets.DefaultConfig()
	s := c.Sheets

	cfg.ServiceAccountPath = firstNonEmpty(s.ServiceAccountPath, ExpandPath(os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	cfg.ClientID = firstNonEmpty(s.ClientID, os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	cfg.ClientSecret = firstNonEmpty(s.ClientSecret, os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	cfg.RefreshToken = firstNonEmpty(s.RefreshToken, os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	cfg.SpreadsheetID = firstNonEmpty(s.SpreadsheetID, os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	cfg.SpreadsheetName = firstNonEmpty(os.Getenv("GOOGLE_SHEETS_SPREADSHEET_NAME"), s.SpreadsheetName, cfg.SpreadsheetName)
	cfg.TimeZone = firstNonEmpty(s.TimeZone, cfg.TimeZone)
	cfg.TokenFile = s.TokenFile

	if err := cfg.ApplyTokenFile(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// OAuthConfig returns the client settings for interactive Sheets login.
func (c *Config) OAuthConfig() sheets.OAuth2Config {
	return sheets.OAuth2Config{
		ClientID:     firstNonEmpty(c.Sheets.ClientID, os.Getenv("GOOGLE_SHEETS_CLIENT_ID")),
		ClientSecret: firstNonEmpty(c.Sheets.ClientSecret, os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")),
		TokenFile:    c.Sheets.TokenFile,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
