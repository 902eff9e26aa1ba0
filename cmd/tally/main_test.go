package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/sheets"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	content := `database:
  path: ` + filepath.Join(dir, "ledger.db") + `
billing:
  invoice_prefix: INV-
  business_name: Example LLC
  default_hourly_rate: "100"
  sequence_start: 1001
  payment_terms_days: 14
logging:
  level: error
sheets:
  token_file: ` + filepath.Join(dir, "token.json") + `
`
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o600))

	fixed := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })

	return &harness{t: t, dir: dir, config: cfg}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", h.config, "--no-auto-evaluate"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewReader(nil))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func TestTimeLogAndList(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("time", "log", "acme", "2.5", "API", "review", "--date", "2026-03-02")
	assert.Contains(t, out, "Logged 2.5h for acme")

	h.mustRun("time", "log", "globex", "1", "Call", "--non-billable")

	out = h.mustRun("time", "list", "--unbilled")
	assert.Contains(t, out, "API review")
	assert.NotContains(t, out, "Call")

	out = h.mustRun("time", "list", "--client", "globex")
	assert.Contains(t, out, "Call")
}

func TestTimeLogRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("time", "log", "acme", "2.5", "Work", "--date", "03/02/2026")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	_, err = h.run("time", "log", "acme", "lots", "Work")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestInvoiceLifecycle(t *testing.T) {
	h := newHarness(t)

	h.mustRun("time", "log", "acme", "2.5", "API review", "--date", "2026-03-02")

	out := h.mustRun("invoices", "create", "acme", "--unbilled",
		"--item", "Setup fee:1:250", "--issue", "2026-03-05", "--payee", "Example LLC")
	assert.Contains(t, out, "INV-1001")
	assert.Contains(t, out, "$500.00")

	out = h.mustRun("time", "list", "--status", "billed")
	assert.Contains(t, out, "API review")

	out = h.mustRun("invoices", "show", "INV-1001")
	assert.Contains(t, out, "Setup fee")
	assert.Contains(t, out, "2026-03-02: API review")
	assert.Contains(t, out, "2026-03-19")

	h.mustRun("invoices", "status", "INV-1001", "paid")
	out = h.mustRun("time", "list", "--status", "paid")
	assert.Contains(t, out, "API review")

	out = h.mustRun("invoices", "list", "--status", "paid")
	assert.Contains(t, out, "INV-1001")
	out = h.mustRun("invoices", "list", "--status", "draft")
	assert.Contains(t, out, "No invoices found.")

	out = h.mustRun("invoices", "export", "INV-1001")
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "INV-1001", doc["number"])
	assert.Equal(t, "500.00", doc["total"])
	assert.Equal(t, "Example LLC", doc["business"])
	assert.Len(t, doc["lines"], 2)

	h.mustRun("invoices", "delete", "INV-1001", "--yes")
	out = h.mustRun("time", "list", "--unbilled")
	assert.Contains(t, out, "API review")

	// Numbers are never reused.
	out = h.mustRun("invoices", "create", "acme", "--unbilled", "--issue", "2026-03-06")
	assert.Contains(t, out, "INV-1002")
}

func TestInvoiceCreateValidation(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("time", "log", "acme", "1", "Work", "--date", "2026-03-02")
	assert.Contains(t, out, "te_")

	h.mustRun("invoices", "create", "acme", "--unbilled", "--issue", "2026-03-05")

	_, err := h.run("invoices", "create", "acme", "--item", "Bad:1:x")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	_, err = h.run("invoices", "create", "acme", "--unbilled")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err), "no lines left to invoice")

	_, err = h.run("invoices", "show", "INV-9999")
	require.Error(t, err)
	assert.True(t, common.IsNotFound(err))
}

func TestRecurringRunIsIdempotent(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("recurring", "add", "infrastructure", "50", "Hosting", "--day", "31")
	assert.Contains(t, out, "monthly rule")

	out = h.mustRun("recurring", "run", "--as-of", "2026-02-27")
	assert.Contains(t, out, "0 materialized")

	out = h.mustRun("recurring", "run", "--as-of", "2026-02-28")
	assert.Contains(t, out, "1 materialized")
	assert.Contains(t, out, "2026-02")

	out = h.mustRun("recurring", "run", "--as-of", "2026-02-28")
	assert.Contains(t, out, "0 materialized, 0 already done, 1 not due")

	out = h.mustRun("expenses", "list", "--category", "infrastructure")
	assert.Contains(t, out, "2026-02-28")
	assert.Contains(t, out, "recurring 2026-02")
}

func TestReportPublishesToSheets(t *testing.T) {
	h := newHarness(t)
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", filepath.Join(h.dir, "sa.json"))

	mock := sheets.NewMockWriter()
	prev := newReportWriter
	newReportWriter = func(context.Context, sheets.Config) (sheets.ReportWriter, error) { return mock, nil }
	t.Cleanup(func() { newReportWriter = prev })

	h.mustRun("time", "log", "acme", "4", "Build", "--date", "2026-03-02")
	h.mustRun("invoices", "create", "acme", "--unbilled", "--issue", "2026-03-03")
	h.mustRun("invoices", "status", "INV-1001", "paid")
	h.mustRun("expenses", "add", "software", "$120", "Licenses", "--date", "2026-03-04")

	out := h.mustRun("report", "--year", "2026", "--sheets")
	assert.Contains(t, out, "$400.00")
	assert.Contains(t, out, "$280.00")
	assert.Contains(t, out, "Report written to Google Sheets")

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "400", calls[0].Report.Income.String())
	assert.Equal(t, "280", calls[0].Report.NetProfit.String())
}

func TestReportWithoutSheetsCredentials(t *testing.T) {
	h := newHarness(t)
	t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "")
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "")

	_, err := h.run("report", "--sheets")
	require.Error(t, err)
	assert.True(t, common.IsInvalidConfig(err))
}

func TestSettingsSequenceOnlyMovesForward(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("settings", "show")
	assert.Contains(t, out, "INV-1001")
	assert.Contains(t, out, "Example LLC")

	h.mustRun("settings", "sequence", "2000")
	out = h.mustRun("settings", "show")
	assert.Contains(t, out, "INV-2000")

	_, err := h.run("settings", "sequence", "1500")
	require.Error(t, err)
	assert.True(t, common.IsConflict(err))
}

func TestMigrateAndBackup(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("migrate", "--status")
	assert.Contains(t, out, "Schema version 2 of 2")

	h.mustRun("time", "log", "acme", "1", "Work")
	out = h.mustRun("backup", "create", "--tag", "before-import", "--description", "safety")
	assert.Contains(t, out, "before-import")

	out = h.mustRun("backup", "list")
	assert.Contains(t, out, "before-import")
	assert.Contains(t, out, "safety")

	out = h.mustRun("backup", "verify", "before-import")
	assert.Contains(t, out, "intact")

	h.mustRun("backup", "delete", "before-import", "--yes")
	out = h.mustRun("backup", "list")
	assert.Contains(t, out, "No checkpoints")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
	assert.Equal(t, "2.0 MiB", humanSize(2*1024*1024))
}

func TestParseManualItem(t *testing.T) {
	item, err := parseManualItem("Consulting: phase 1:2:$150")
	require.NoError(t, err)
	assert.Equal(t, "Consulting: phase 1", item.Description)
	assert.Equal(t, "2", item.Quantity.String())
	assert.Equal(t, "150", item.UnitPrice.String())

	_, err = parseManualItem("just text")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}
