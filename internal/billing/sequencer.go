package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
)

// InvoiceNumber is an allocated invoice identifier.
type InvoiceNumber struct {
	Value    string
	Sequence int64
}

// FormatNumber renders an invoice number as prefix followed by the counter.
func FormatNumber(prefix string, sequence int64) string {
	return prefix + strconv.FormatInt(sequence, 10)
}

// Sequencer issues invoice numbers. Every allocation is a single atomic
// statement in the store; numbers may be skipped but are never handed out
// twice.
type Sequencer struct {
	store service.SequenceStore
	start int64
}

// NewSequencer creates a sequencer. start is the first value of a prefix
// that has never been used.
func NewSequencer(store service.SequenceStore, start int64) *Sequencer {
	if start < 0 {
		start = 1
	}
	return &Sequencer{store: store, start: start}
}

// NextNumber allocates the next number for prefix.
func (s *Sequencer) NextNumber(ctx context.Context, prefix string) (InvoiceNumber, error) {
	if prefix == "" {
		return InvoiceNumber{}, common.Validationf("invoice prefix is required")
	}
	seq, err := s.store.NextSequence(ctx, prefix, s.start)
	if err != nil {
		return InvoiceNumber{}, fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	number := InvoiceNumber{Value: FormatNumber(prefix, seq), Sequence: seq}
	slog.Debug("allocated invoice number", "number", number.Value)
	return number, nil
}

// SetStart moves the counter for prefix forward so the next number is
// value. Lowering a counter is a conflict.
func (s *Sequencer) SetStart(ctx context.Context, prefix string, value int64) error {
	if prefix == "" {
		return common.Validationf("invoice prefix is required")
	}
	return s.store.SetSequenceStart(ctx, prefix, value)
}

// Peek returns the value the next allocation for prefix would get, without
// consuming it.
func (s *Sequencer) Peek(ctx context.Context, prefix string) (int64, error) {
	counter, err := s.store.GetSequence(ctx, prefix)
	if common.IsNotFound(err) {
		return s.start, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.NextValue, nil
}

// EnsureStarted seeds the counter for prefix with the configured start if
// it has never been used.
func (s *Sequencer) EnsureStarted(ctx context.Context, prefix string) error {
	_, err := s.store.GetSequence(ctx, prefix)
	if !common.IsNotFound(err) {
		return err
	}
	err = s.store.SetSequenceStart(ctx, prefix, s.start)
	if common.IsConflict(err) {
		// Another session seeded and used it in the meantime.
		return nil
	}
	return err
}
