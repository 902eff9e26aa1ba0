package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/billing"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/sheets"
)

// newReportWriter builds the destination of `report --sheets`.
var newReportWriter = func(ctx context.Context, cfg sheets.Config) (sheets.ReportWriter, error) {
	return sheets.NewWriter(ctx, cfg, slog.Default())
}

func reportCmd() *cobra.Command {
	var (
		from, to string
		year     int
		toSheets bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize income, expenses and net profit",
		Long: `Summarize a period of the ledger. Paid invoices count as income and sent
ones as outstanding, both by issue date. Net profit is income minus
expenses; it can be negative.`,
		Example: `  # This year's numbers
  tally report --year 2026

  # A quarter, also published to Google Sheets
  tally report --from 2026-01-01 --to 2026-03-31 --sheets`,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()

			period, err := reportPeriod(from, to, year)
			if err != nil {
				return err
			}

			invoices, err := a.assembler.List(ctx, service.InvoiceFilter{})
			if err != nil {
				return err
			}
			expenses, err := a.store.ListExpenses(ctx, service.ExpenseFilter{Range: period})
			if err != nil {
				return err
			}
			report := billing.Summarize(invoices, expenses, period)
			outln(cmd, renderReport(report))

			if !toSheets {
				return nil
			}
			return publishReport(ctx, cmd, a, sheets.ReportData{
				GeneratedAt: now(),
				Report:      report,
				Invoices:    invoices,
				Expenses:    expenses,
			})
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&from, "from", "", "first day of the period")
	flags.StringVar(&to, "to", "", "last day of the period")
	flags.IntVar(&year, "year", 0, "a calendar year (overrides --from/--to)")
	flags.BoolVar(&toSheets, "sheets", false, "also write the report to Google Sheets")
	cmd.MarkFlagsMutuallyExclusive("year", "from")
	cmd.MarkFlagsMutuallyExclusive("year", "to")

	cmd.AddCommand(reportAuthCmd())
	return cmd
}

func reportPeriod(from, to string, year int) (service.DateRange, error) {
	if year != 0 {
		if year < 1900 || year > 9999 {
			return service.DateRange{}, common.Validationf("invalid year %d", year)
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return service.DateRange{Start: start, End: start.AddDate(1, 0, -1)}, nil
	}
	start, end, err := parseRange(from, to)
	if err != nil {
		return service.DateRange{}, err
	}
	return service.DateRange{Start: start, End: end}, nil
}

func renderReport(r billing.Report) string {
	var b strings.Builder

	summary := [][]string{
		{"Income", cli.Money(r.Income), fmt.Sprintf("%d paid invoices", r.PaidCount)},
		{"Outstanding", cli.Money(r.Outstanding), fmt.Sprintf("%d sent invoices", r.OpenCount)},
		{"Expenses", cli.Money(r.Expenses), ""},
		{"  recurring", cli.Money(r.Recurring), ""},
	}
	net := cli.Money(r.NetProfit)
	if r.NetProfit.IsNegative() {
		net = cli.ErrorStyle.Render(net)
	} else {
		net = cli.SuccessStyle.Render(net)
	}
	summary = append(summary, []string{cli.BoldStyle.Render("Net profit"), net, ""})
	b.WriteString(cli.RenderTable([]string{"", "AMOUNT", ""}, summary))

	if len(r.Categories) > 0 {
		b.WriteString("\n\n")
		rows := lo.Map(r.Categories, func(c billing.CategoryTotal, _ int) []string {
			return []string{c.Category, cli.Money(c.Amount), itoa(c.Count)}
		})
		b.WriteString(cli.RenderTable([]string{"CATEGORY", "AMOUNT", "COUNT"}, rows))
	}

	return cli.RenderBox(cli.ChartIcon+" "+periodTitle(r.Period), b.String())
}

func periodTitle(p service.DateRange) string {
	switch {
	case p.Start.IsZero() && p.End.IsZero():
		return "All time"
	case p.End.IsZero():
		return "Since " + p.Start.Format("Jan 2, 2006")
	case p.Start.IsZero():
		return "Through " + p.End.Format("Jan 2, 2006")
	}
	return p.Start.Format("Jan 2, 2006") + " - " + p.End.Format("Jan 2, 2006")
}

func publishReport(ctx context.Context, cmd *cobra.Command, a *app, data sheets.ReportData) error {
	cfg, err := a.cfg.SheetsWriterConfig()
	if err != nil {
		return err
	}
	writer, err := newReportWriter(ctx, cfg)
	if err != nil {
		return err
	}
	if err := writer.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write report to Google Sheets: %w", err)
	}
	outln(cmd, cli.FormatSuccess("Report written to Google Sheets"))
	return nil
}

func reportAuthCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:         "auth",
		Short:       "Log in to Google Sheets in the browser",
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			oc := a.cfg.OAuthConfig()
			if oc.ClientID == "" || oc.ClientSecret == "" {
				return common.NewError("OAuth client is not configured").
					WithHint("set sheets.client_id and sheets.client_secret").
					Mark(common.ErrInvalidConfig)
			}
			oc.ListenAddr = listen

			token, err := sheets.Authorize(cmd.Context(), oc)
			if err != nil {
				return err
			}
			if oc.TokenFile == "" {
				outln(cmd, "Add this to your configuration as sheets.refresh_token:")
				outln(cmd, token.RefreshToken)
				return nil
			}
			outln(cmd, cli.FormatSuccess("Saved Google credentials to "+oc.TokenFile))
			return nil
		}),
	}

	cmd.Flags().StringVar(&listen, "listen", "localhost:8080", "address of the local OAuth callback")
	return cmd
}
