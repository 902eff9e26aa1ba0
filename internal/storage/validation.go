// Package storage provides the data persistence layer for the billing ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return common.WithError(fmt.Errorf("%w: %s", ErrEmptyString, paramName)).Mark(common.ErrValidation)
	}
	return nil
}

// validateIDs ensures an id list is non-empty and free of duplicates.
func validateIDs(ids []string, paramName string) error {
	if len(ids) == 0 {
		return common.Validationf("%s cannot be empty", paramName)
	}
	for _, id := range ids {
		if err := validateString(id, paramName); err != nil {
			return err
		}
	}
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return common.Validationf("%s contains duplicates: %s", paramName, strings.Join(dups, ", "))
	}
	return nil
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("failed to close rows", "error", err)
	}
}

func notFound(kind, id string) error {
	return common.NewErrorf("%s %s not found", strings.ReplaceAll(kind, "_", " "), id).
		WithEntity(kind, id).
		Mark(common.ErrNotFound)
}

// exists reports whether a row with id exists in table.
func exists(ctx context.Context, q queryer, table, id string) (bool, error) {
	var found bool
	// #nosec G201 - table is always a constant from this package
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", table)
	if err := q.QueryRowContext(ctx, query, id).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return found, nil
}
