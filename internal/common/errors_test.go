package common

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder_Mark(t *testing.T) {
	err := NewErrorf("time entry %s is already billed", "te_1").
		WithEntity("time_entry", "te_1").
		WithHint("refresh the unbilled list").
		Mark(ErrConflict)

	require.Error(t, err)
	assert.Equal(t, "time entry te_1 is already billed", err.Error())
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "refresh the unbilled list", Hints(err))
	assert.Contains(t, Entities(err), "time_entry=te_1")
}

func TestMarksSurviveWrapping(t *testing.T) {
	base := NewError("invoice inv_1 not found").Mark(ErrNotFound)
	wrapped := fmt.Errorf("failed to load invoice: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsSequenceExhausted(wrapped))
}

func TestValidationf(t *testing.T) {
	err := Validationf("hours must not be negative, got %s", "-1")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "hours must not be negative, got -1", err.Error())
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Client string   `validate:"required"`
		IDs    []string `validate:"unique"`
	}

	require.NoError(t, ValidateStruct(&request{Client: "acme", IDs: []string{"a", "b"}}))

	err := ValidateStruct(&request{IDs: []string{"a", "a"}})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "request.Client (required)")
	assert.Contains(t, err.Error(), "request.IDs (unique)")
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", ""} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}

func TestSetupLogger_RejectsUnknownFormat(t *testing.T) {
	err := SetupLogger(0, "xml")
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}
