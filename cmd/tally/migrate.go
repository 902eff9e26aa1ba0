package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/storage"
)

func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the ledger schema up to date",
		Long: `Every command migrates the ledger before it runs; this command does only
that, or with --status reports the schema version without changing it.`,
		Annotations: map[string]string{skipAutoEvaluate: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			version, err := a.store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			if status {
				outf(cmd, "Schema version %d of %d (%s)\n", version, storage.LatestSchemaVersion(), a.store.Path())
				return nil
			}
			outln(cmd, cli.FormatSuccess("Ledger schema is at version "+itoa(version)))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&status, "status", false, "report the schema version only")
	return cmd
}
