package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "yes", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out bytes.Buffer
			got, err := NewPrompter(strings.NewReader(tt.input), &out).Confirm(context.Background(), "Delete invoice?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Delete invoice? [y/N]")
		})
	}
}

func TestPrompter_ConfirmCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPrompter(r, io.Discard).Confirm(ctx, "Continue?")
	assert.ErrorIs(t, err, ErrInputCancelled)
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"Number", "Total"},
		[][]string{{"INV-1001", "$1200.00"}, {"INV-1002"}},
	)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "INV-1001")
	assert.Contains(t, out, "$1200.00")
	assert.Equal(t, lipgloss.Width(lines[len(lines)-2]), lipgloss.Width(lines[len(lines)-1]), "rows are padded to the same width")
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$12.50", Money(decimal.RequireFromString("12.5")))
	assert.Equal(t, "-$3.00", Money(decimal.NewFromInt(-3)))
}
