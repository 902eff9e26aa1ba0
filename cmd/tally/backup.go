package main

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/storage"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage point-in-time copies of the ledger",
		Long: `Checkpoints are consistent copies of the ledger written next to the
database file. They can be taken while other sessions keep working.`,
	}
	cmd.AddCommand(backupCreateCmd(), backupListCmd(), backupVerifyCmd(), backupDeleteCmd())
	return cmd
}

func checkpoints(a *app) (*storage.CheckpointManager, error) {
	return a.store.Checkpoints()
}

func backupCreateCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:         "create",
		Short:       "Write a checkpoint",
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			cm, err := checkpoints(a)
			if err != nil {
				return err
			}
			meta, err := cm.Create(cmd.Context(), tag, description)
			if err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%s)", meta.ID, humanSize(meta.FileSize))))
			return nil
		}),
	}

	cmd.Flags().StringVar(&tag, "tag", "", "checkpoint name (default: timestamp)")
	cmd.Flags().StringVar(&description, "description", "", "free-form note")
	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "list",
		Short:       "List checkpoints, newest first",
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			cm, err := checkpoints(a)
			if err != nil {
				return err
			}
			list, err := cm.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				outln(cmd, cli.SubtleStyle.Render("No checkpoints in "+cm.Dir()))
				return nil
			}

			rows := lo.Map(list, func(m storage.CheckpointMetadata, _ int) []string {
				return []string{
					m.ID,
					m.CreatedAt.Format("2006-01-02 15:04"),
					humanSize(m.FileSize),
					itoa(m.RowCounts["invoices"]),
					itoa(m.RowCounts["time_entries"]),
					m.Description,
				}
			})
			outln(cmd, cli.RenderTable([]string{"TAG", "CREATED", "SIZE", "INVOICES", "ENTRIES", "DESCRIPTION"}, rows))
			return nil
		}),
	}
}

func backupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "verify <tag>",
		Short:       "Run an integrity check on a checkpoint",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			cm, err := checkpoints(a)
			if err != nil {
				return err
			}
			if err := cm.Verify(cmd.Context(), args[0]); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Checkpoint "+args[0]+" is intact"))
			return nil
		}),
	}
}

func backupDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:         "delete <tag>",
		Short:       "Remove a checkpoint",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			cm, err := checkpoints(a)
			if err != nil {
				return err
			}
			if ok, confirmErr := confirm(cmd, yes, "Delete checkpoint "+args[0]+"?"); confirmErr != nil || !ok {
				return confirmErr
			}
			if err := cm.Delete(args[0]); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess("Deleted checkpoint "+args[0]))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
