package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func timeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Log and review time entries",
		Example: `  # Log two and a half hours for acme
  tally time log acme 2.5 "API review"

  # Show what has not been invoiced yet
  tally time list --unbilled --client acme`,
	}

	cmd.AddCommand(timeLogCmd(), timeListCmd(), timeEditCmd(), timeDeleteCmd())
	return cmd
}

func timeLogCmd() *cobra.Command {
	var date, rate string
	var nonBillable bool

	cmd := &cobra.Command{
		Use:   "log <client> <hours> <description>",
		Short: "Record a block of work",
		Args:  cobra.MinimumNArgs(3),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			hours, err := parseDecimal("hours", args[1])
			if err != nil {
				return err
			}
			day, err := parseDate(date)
			if err != nil {
				return err
			}

			entry := &model.TimeEntry{
				ClientReference: args[0],
				Date:            day,
				Hours:           hours,
				Description:     strings.Join(args[2:], " "),
				Billable:        !nonBillable,
			}
			if rate != "" {
				r, rateErr := parseDecimal("rate", rate)
				if rateErr != nil {
					return rateErr
				}
				entry.Rate = &r
			}

			if err := a.ledger.LogTime(cmd.Context(), entry); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Logged "+entry.Hours.String()+"h for "+entry.ClientReference+" ("+entry.ID+")"))
			return nil
		}),
	}

	cmd.Flags().StringVar(&date, "date", "today", "date worked (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rate, "rate", "", "hourly rate override")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "record the time without billing it")
	return cmd
}

func timeListCmd() *cobra.Command {
	var client, status, from, to string
	var unbilled bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List time entries, newest first",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			filter := service.TimeEntryFilter{
				ClientReference: client,
				Range:           service.DateRange{Start: start, End: end},
			}
			if unbilled {
				status = string(model.TimeEntryUnbilled)
				billable := true
				filter.Billable = &billable
			}
			if status != "" {
				s := model.TimeEntryStatus(status)
				if !s.Valid() {
					return common.Validationf("unknown status %q", status)
				}
				filter.Status = &s
			}

			entries, err := a.ledger.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				outln(cmd, cli.SubtleStyle.Render("No time entries found."))
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				billable := "yes"
				if !e.Billable {
					billable = "no"
				}
				rows = append(rows, []string{
					e.ID,
					e.Date.Format(model.DateLayout),
					e.ClientReference,
					e.Hours.String(),
					string(e.Status),
					billable,
					e.Description,
				})
			}
			outln(cmd, cli.RenderTable([]string{"ID", "DATE", "CLIENT", "HOURS", "STATUS", "BILLABLE", "DESCRIPTION"}, rows))
			return nil
		}),
	}

	cmd.Flags().StringVar(&client, "client", "", "only this client")
	cmd.Flags().StringVar(&status, "status", "", "unbilled, billed or paid")
	cmd.Flags().BoolVar(&unbilled, "unbilled", false, "only billable entries not yet invoiced")
	cmd.Flags().StringVar(&from, "from", "", "earliest date")
	cmd.Flags().StringVar(&to, "to", "", "latest date")
	return cmd
}

func timeEditCmd() *cobra.Command {
	var hours, description, date, rate string
	var clearRate, billable, nonBillable bool

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an unbilled time entry",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var changes model.TimeEntryChanges
			flags := cmd.Flags()

			if flags.Changed("hours") {
				h, err := parseDecimal("hours", hours)
				if err != nil {
					return err
				}
				changes.Hours = &h
			}
			if flags.Changed("description") {
				changes.Description = &description
			}
			if flags.Changed("date") {
				d, err := parseDate(date)
				if err != nil {
					return err
				}
				changes.Date = &d
			}
			if flags.Changed("rate") {
				r, err := parseDecimal("rate", rate)
				if err != nil {
					return err
				}
				changes.Rate = &r
			}
			changes.ClearRate = clearRate
			if billable && nonBillable {
				return common.Validationf("--billable and --non-billable are mutually exclusive")
			}
			if billable || nonBillable {
				b := billable
				changes.Billable = &b
			}

			entry, err := a.ledger.Update(cmd.Context(), args[0], changes)
			if err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Updated "+entry.ID))
			return nil
		}),
	}

	cmd.Flags().StringVar(&hours, "hours", "", "new duration in hours")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&date, "date", "", "new date")
	cmd.Flags().StringVar(&rate, "rate", "", "new hourly rate override")
	cmd.Flags().BoolVar(&clearRate, "clear-rate", false, "use the default hourly rate")
	cmd.Flags().BoolVar(&billable, "billable", false, "mark billable")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "mark non-billable")
	return cmd
}

func timeDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unbilled time entry",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if ok, err := confirm(cmd, yes, "Delete time entry "+args[0]+"?"); err != nil || !ok {
				return err
			}
			if err := a.ledger.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Deleted "+args[0]))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// confirm asks on stdin unless yes is set.
func confirm(cmd *cobra.Command, yes bool, question string) (bool, error) {
	if yes {
		return true, nil
	}
	ok, err := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm(cmd.Context(), question)
	if err == nil && !ok {
		outln(cmd, cli.SubtleStyle.Render("Canceled."))
	}
	return ok, err
}
