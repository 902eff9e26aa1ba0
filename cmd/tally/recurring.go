package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/billing"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring expense rules",
		Example: `  # Hosting on the 1st of every month
  tally recurring add infrastructure 50 "Hosting" --day 1

  # Materialize everything due as of a date
  tally recurring run --as-of 2024-03-31`,
	}
	cmd.AddCommand(recurringAddCmd(), recurringListCmd(), recurringDeleteCmd(), recurringRunCmd())
	return cmd
}

func recurringAddCmd() *cobra.Command {
	var frequency string
	var day int

	cmd := &cobra.Command{
		Use:   "add <category> <amount> <description>",
		Short: "Create a recurring expense rule",
		Long: `Create a rule that books one expense per period on the given day. Days past
the end of a month land on its last day.`,
		Args: cobra.MinimumNArgs(3),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			amount, err := parseDecimal("amount", args[1])
			if err != nil {
				return err
			}
			rule := &model.RecurringExpenseRule{
				Category:    args[0],
				Amount:      amount,
				Description: strings.Join(args[2:], " "),
				Frequency:   model.Frequency(frequency),
				DayOfPeriod: day,
			}
			if err := a.scheduler.CreateRule(cmd.Context(), rule); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Created %s rule %s: %s %s on day %d",
				rule.Frequency, rule.ID, cli.Money(rule.Amount), rule.Description, rule.DayOfPeriod)))
			return nil
		}),
	}

	cmd.Flags().StringVar(&frequency, "frequency", string(model.FrequencyMonthly), "monthly or yearly")
	cmd.Flags().IntVar(&day, "day", 1, "day of the month the expense is booked (1-31)")
	return cmd
}

func recurringListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring rules",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			rules, err := a.scheduler.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				outln(cmd, cli.SubtleStyle.Render("No recurring rules."))
				return nil
			}

			asOf := today()
			rows := lo.Map(rules, func(r model.RecurringExpenseRule, _ int) []string {
				period, _, due := billing.Due(r, asOf)
				state := "up to date"
				if due {
					state = "due " + period
				}
				return []string{
					r.ID,
					string(r.Frequency),
					fmt.Sprintf("%d", r.DayOfPeriod),
					r.Category,
					cli.Money(r.Amount),
					lo.FromPtr(r.LastMaterializedPeriod),
					state,
					r.Description,
				}
			})
			outln(cmd, cli.RenderTable([]string{"ID", "FREQUENCY", "DAY", "CATEGORY", "AMOUNT", "LAST", "STATE", "DESCRIPTION"}, rows))
			return nil
		}),
	}
}

func recurringDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule, keeping the expenses it already produced",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if ok, err := confirm(cmd, yes, "Delete recurring rule "+args[0]+"?"); err != nil || !ok {
				return err
			}
			if err := a.scheduler.DeleteRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Deleted "+args[0]))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func recurringRunCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize every recurring expense that is due",
		Long: `Evaluate all rules as of a date. Running it again for the same period is
harmless: each rule produces at most one expense per period.`,
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			day, err := parseDate(asOf)
			if err != nil {
				return err
			}

			report, evalErr := a.scheduler.EvaluateAll(cmd.Context(), day)
			if report == nil {
				return evalErr
			}

			for _, r := range report.Results {
				switch r.Outcome {
				case billing.OutcomeMaterialized:
					outln(cmd, cli.FormatSuccess(fmt.Sprintf("%s %s: %s %s", r.RuleID, r.Period, cli.Money(r.Expense.Amount), r.Expense.Description)))
				case billing.OutcomeFailed:
					outln(cmd, cli.FormatError(fmt.Sprintf("%s: %v", r.RuleID, r.Err)))
				}
			}
			outln(cmd, cli.FormatInfo(fmt.Sprintf("%d materialized, %d already done, %d not due, %d failed",
				report.Count(billing.OutcomeMaterialized),
				report.Count(billing.OutcomeAlreadyMaterialized),
				report.Count(billing.OutcomeNotDue),
				report.Count(billing.OutcomeFailed))))
			return evalErr
		}),
	}

	cmd.Flags().StringVar(&asOf, "as-of", "today", "evaluation date (YYYY-MM-DD)")
	return cmd
}
