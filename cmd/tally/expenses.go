package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/ofx"
	"github.com/Veraticus/tally/internal/service"
)

func expensesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"expense"},
		Short:   "Record and review expenses",
	}
	cmd.AddCommand(expenseAddCmd(), expenseListCmd(), expenseDeleteCmd(), expenseImportCmd())
	return cmd
}

func expenseAddCmd() *cobra.Command {
	var date, receipt string

	cmd := &cobra.Command{
		Use:   "add <category> <amount> <description>",
		Short: "Record a one-time expense",
		Args:  cobra.MinimumNArgs(3),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			amount, err := parseDecimal("amount", args[1])
			if err != nil {
				return err
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}

			expense := &model.Expense{
				Category:    args[0],
				Amount:      amount,
				Description: strings.Join(args[2:], " "),
				Date:        day,
			}
			if receipt != "" {
				expense.ReceiptReference = &receipt
			}
			if err := a.store.CreateExpense(cmd.Context(), expense); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Recorded %s under %s (%s)", cli.Money(expense.Amount), expense.Category, expense.ID)))
			return nil
		}),
	}

	cmd.Flags().StringVar(&date, "date", "today", "expense date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&receipt, "receipt", "", "receipt file or reference")
	return cmd
}

func expenseListCmd() *cobra.Command {
	var category, from, to string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			expenses, err := a.store.ListExpenses(cmd.Context(), service.ExpenseFilter{
				Category: category,
				Range:    service.DateRange{Start: start, End: end},
			})
			if err != nil {
				return err
			}
			if len(expenses) == 0 {
				outln(cmd, cli.SubtleStyle.Render("No expenses found."))
				return nil
			}

			rows := make([][]string, 0, len(expenses))
			for _, e := range expenses {
				source := "one-time"
				if e.Recurring() {
					source = "recurring " + *e.OriginPeriod
				}
				rows = append(rows, []string{
					e.ID,
					e.Date.Format(model.DateLayout),
					e.Category,
					cli.Money(e.Amount),
					source,
					e.Description,
				})
			}
			outln(cmd, cli.RenderTable([]string{"ID", "DATE", "CATEGORY", "AMOUNT", "SOURCE", "DESCRIPTION"}, rows))
			return nil
		}),
	}

	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVar(&from, "from", "", "earliest date")
	cmd.Flags().StringVar(&to, "to", "", "latest date")
	return cmd
}

func expenseDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense",
		Long: `Delete an expense. Deleting a materialized recurring expense does not
make its rule produce it again.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if ok, err := confirm(cmd, yes, "Delete expense "+args[0]+"?"); err != nil || !ok {
				return err
			}
			if err := a.store.DeleteExpense(cmd.Context(), args[0]); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Deleted "+args[0]))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func expenseImportCmd() *cobra.Command {
	var category string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.ofx>...",
		Short: "Import statement debits from OFX/QFX files",
		Long: `Import every debit of one or more OFX/QFX bank or card statements as a
one-time expense. Lines that were imported before are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			parser := ofx.NewParser(category)
			importer := ofx.NewImporter(a.store)

			var total ofx.ImportResult
			for _, path := range args {
				stmt, err := parseStatement(cmd, parser, path)
				if err != nil {
					return err
				}
				if dryRun {
					outln(cmd, cli.FormatInfo(fmt.Sprintf("%s: %d debits, %d credits skipped", path, len(stmt.Expenses), stmt.Credits)))
					continue
				}

				bar := progressbar.NewOptions(len(stmt.Expenses),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription(path),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				result, err := importer.Import(ctx, stmt.Expenses, func() { _ = bar.Add(1) })
				_ = bar.Finish()
				if err != nil {
					return err
				}
				total.Created += result.Created
				total.Duplicates += result.Duplicates
			}

			if !dryRun {
				outln(cmd, cli.FormatSuccess(fmt.Sprintf("Imported %d expenses, skipped %d already imported", total.Created, total.Duplicates)))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&category, "category", "uncategorized", "category for imported expenses")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse only, store nothing")
	return cmd
}

func parseStatement(cmd *cobra.Command, parser *ofx.Parser, path string) (*ofx.Statement, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stmt, err := parser.Parse(cmd.Context(), f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stmt, nil
}
