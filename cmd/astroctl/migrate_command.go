package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astroguide/internal/infra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applied, err := infra.RunMigrations(cfg.DatabaseURL, ctx.logger)
			if err != nil {
				return err
			}
			if applied {
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema already up to date")
			}
			return nil
		},
	})
	return migrateCmd
}
