package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astroguide/internal/tools/sqllint"
)

func newLintSQLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint-sql [path...]",
		Short: "Check inline SQL constants for unique --sql audit markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			violations, err := sqllint.Lint(args...)
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "SQL markers OK")
				return nil
			}
			for _, v := range violations {
				fmt.Fprintln(cmd.ErrOrStderr(), "  "+v.String())
			}
			return fmt.Errorf("%d SQL marker violation(s)", len(violations))
		},
	}
}
