package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// NextSequence hands out the current value of the prefix counter and
// advances it in a single statement. Each call commits on its own, so a
// value is consumed even if the caller later fails. start seeds a counter
// that does not exist yet.
func (s *SQLiteStorage) NextSequence(ctx context.Context, prefix string, start int64) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(prefix, "prefix"); err != nil {
		return 0, err
	}
	if start < 0 || start == math.MaxInt64 {
		return 0, common.Validationf("sequence start must be between 0 and %d, got %d", int64(math.MaxInt64-1), start)
	}

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (prefix, next_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(prefix) DO UPDATE
			SET next_value = sequence_counters.next_value + 1,
			    updated_at = excluded.updated_at
			WHERE sequence_counters.next_value < 9223372036854775807
		RETURNING next_value - 1`,
		prefix, start+1, s.now(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.NewErrorf("invoice sequence %q is exhausted", prefix).
			WithEntity("sequence", prefix).
			WithHint("start a new prefix").
			Mark(common.ErrSequenceExhausted)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence value: %w", err)
	}

	slog.Debug("allocated sequence value", "prefix", prefix, "value", value)
	return value, nil
}

// SetSequenceStart moves the prefix counter forward to value, creating it
// when needed. Counters never move backwards.
func (s *SQLiteStorage) SetSequenceStart(ctx context.Context, prefix string, value int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(prefix, "prefix"); err != nil {
		return err
	}
	if value < 0 || value == math.MaxInt64 {
		return common.Validationf("sequence start must be between 0 and %d, got %d", int64(math.MaxInt64-1), value)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sequence_counters (prefix, next_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(prefix) DO UPDATE
			SET next_value = excluded.next_value,
			    updated_at = excluded.updated_at
			WHERE excluded.next_value >= sequence_counters.next_value`,
		prefix, value, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set sequence start: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NewErrorf("invoice sequence %q is already past %d", prefix, value).
			WithEntity("sequence", prefix).
			WithHint("sequence numbers are never reused").
			Mark(common.ErrConflict)
	}

	slog.Info("set invoice sequence start", "prefix", prefix, "next_value", value)
	return nil
}

// GetSequence returns the counter for prefix.
func (s *SQLiteStorage) GetSequence(ctx context.Context, prefix string) (*model.SequenceCounter, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(prefix, "prefix"); err != nil {
		return nil, err
	}

	counter := model.SequenceCounter{Prefix: prefix}
	err := s.db.QueryRowContext(ctx,
		`SELECT next_value FROM sequence_counters WHERE prefix = ?`, prefix,
	).Scan(&counter.NextValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("sequence", prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sequence: %w", err)
	}
	return &counter, nil
}
