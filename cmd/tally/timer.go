package main

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/tui"
)

func timerCmd() *cobra.Command {
	var rate string
	var nonBillable bool

	cmd := &cobra.Command{
		Use:   "timer <client> <description>",
		Short: "Time work interactively and log it when stopped",
		Long: `Start a stopwatch for a client. Stopping it logs a time entry whose
duration is rounded up to the configured increment; paused time is not billed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var override *decimal.Decimal
			if rate != "" {
				r, err := parseDecimal("rate", rate)
				if err != nil {
					return err
				}
				override = &r
			}

			session, err := tui.Run(cmd.Context(), tui.Config{
				Clock:           now,
				Rate:            override,
				ClientReference: args[0],
				Description:     strings.Join(args[1:], " "),
				Billable:        !nonBillable,
			})
			if err != nil {
				return err
			}
			if session == nil {
				outln(cmd, cli.SubtleStyle.Render("Timer discarded."))
				return nil
			}

			entry, err := a.ledger.StopTimer(cmd.Context(), *session)
			if err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Logged "+entry.Hours.String()+"h for "+entry.ClientReference+" ("+entry.ID+")"))
			return nil
		}),
	}

	cmd.Flags().StringVar(&rate, "rate", "", "hourly rate override")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "start as non-billable")
	return cmd
}
