// Package common provides shared utilities and types used across the application.
package common

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Concrete errors are marked with one of these so callers can
// decide between retry and abort with errors.Is.
var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a lost conditional write; refresh state before retrying.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a reference to a missing entry, rule or invoice.
	ErrNotFound = errors.New("not found")
	// ErrSequenceExhausted marks a counter that cannot advance without wrapping.
	ErrSequenceExhausted = errors.New("sequence exhausted")

	// ErrInvalidConfig marks configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorBuilder provides a fluent interface for building marked errors.
// Mark must be the last call in the chain.
type ErrorBuilder struct {
	err error
}

// NewError starts a builder chain with a new message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// NewErrorf starts a builder chain with a formatted message.
func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError starts a builder chain with an existing error.
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithHint attaches caller-facing guidance.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithHintf is WithHint with formatting.
func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithEntity records which entity the failure is about.
func (b *ErrorBuilder) WithEntity(kind, id string) *ErrorBuilder {
	b.err = errors.WithDetailf(b.err, "%s=%s", kind, id)
	return b
}

// Mark marks the error with one of the error classes above.
func (b *ErrorBuilder) Mark(reference error) error {
	return errors.Mark(b.err, reference)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a lost conditional write.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsSequenceExhausted reports whether err is a counter exhaustion.
func IsSequenceExhausted(err error) bool { return errors.Is(err, ErrSequenceExhausted) }

// IsInvalidConfig reports whether err stems from bad configuration.
func IsInvalidConfig(err error) bool { return errors.Is(err, ErrInvalidConfig) }

// Hints returns the hints attached anywhere in the chain, one per line.
func Hints(err error) string {
	return errors.FlattenHints(err)
}

// Entities returns the entity details attached anywhere in the chain.
func Entities(err error) []string {
	return errors.GetAllDetails(err)
}

// Validationf is shorthand for a marked validation error.
func Validationf(format string, args ...any) error {
	return NewErrorf(format, args...).Mark(ErrValidation)
}
