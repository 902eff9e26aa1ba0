package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and update business settings",
		Long: `Business settings live in the ledger. They are seeded from the
configuration file on first use; "settings apply" copies the current
configuration over them later.`,
	}
	cmd.AddCommand(settingsShowCmd(), settingsApplyCmd(), settingsSequenceCmd())
	return cmd
}

func settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			settings, err := a.store.GetSettings(ctx)
			if err != nil {
				return err
			}
			next, err := a.sequencer.Peek(ctx, settings.InvoicePrefix)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Business", settings.BusinessName},
				{"Invoice prefix", settings.InvoicePrefix},
				{"Next invoice", fmt.Sprintf("%s%d", settings.InvoicePrefix, next)},
				{"Default rate", cli.Money(settings.DefaultHourlyRate) + "/h"},
				{"Payment terms", fmt.Sprintf("%d days", settings.PaymentTermsDays)},
				{"Database", a.store.Path()},
			}
			outln(cmd, cli.RenderTable([]string{"SETTING", "VALUE"}, rows))
			return nil
		}),
	}
}

func settingsApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Overwrite the stored settings with the configuration",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			settings, err := a.cfg.Settings()
			if err != nil {
				return err
			}
			if err := a.store.SaveSettings(ctx, settings); err != nil {
				return err
			}
			// A new prefix starts its own counter.
			if err := a.sequencer.EnsureStarted(ctx, settings.InvoicePrefix); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Settings updated from configuration"))
			return nil
		}),
	}
}

func settingsSequenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequence <next>",
		Short: "Set the number the next invoice will get",
		Long: `Move the invoice counter of the current prefix forward. Numbers that
have been handed out are never reused, so the counter cannot go back.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			next, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || next < 1 {
				return common.NewErrorf("invalid sequence %q", args[0]).
					WithHint("use a positive whole number").
					Mark(common.ErrValidation)
			}
			settings, err := a.store.GetSettings(ctx)
			if err != nil {
				return err
			}
			if err := a.sequencer.SetStart(ctx, settings.InvoicePrefix, next); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Next invoice will be %s%d", settings.InvoicePrefix, next)))
			return nil
		}),
	}
}
