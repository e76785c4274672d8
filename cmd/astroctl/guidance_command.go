package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"astroguide/internal/domain"
)

func newGuidanceCommand(ctx *commandContext) *cobra.Command {
	guidanceCmd := &cobra.Command{
		Use:   "guidance",
		Short: "Inspect generated guidance documents",
	}
	guidanceCmd.AddCommand(newGuidanceShowCommand(ctx))
	return guidanceCmd
}

func newGuidanceShowCommand(ctx *commandContext) *cobra.Command {
	var (
		owner string
		kind  string
		date  string
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "show [guidance-id]",
		Short: "Show a document by id or by --owner/--kind/--date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(s *stores) error {
				var (
					g   *domain.Guidance
					err error
				)
				if len(args) == 1 {
					g, err = s.guidance.GetByID(cmd.Context(), strings.TrimSpace(args[0]))
				} else {
					key, keyErr := guidanceKey(owner, kind, date, time.Now())
					if keyErr != nil {
						return keyErr
					}
					g, err = s.guidance.FindByKey(cmd.Context(), key)
				}
				if err != nil {
					return err
				}
				if raw {
					if len(g.Content) == 0 {
						return fmt.Errorf("guidance %s has no content yet", g.ID)
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(g.Content))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, buildGuidanceRows(g), []columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	cmd.Flags().StringVar(&kind, "kind", string(domain.JobKindDailyGuidance), "Document kind")
	cmd.Flags().StringVar(&date, "date", "", "Date key (YYYY-MM-DD, default today UTC)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the JSON content only")
	return cmd
}

func guidanceKey(owner, kind, date string, now time.Time) (domain.NaturalKey, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.NaturalKey{}, fmt.Errorf("--owner is required without a guidance id")
	}
	k, err := domain.ParseJobKind(kind)
	if err != nil {
		return domain.NaturalKey{}, err
	}
	dateKey, err := domain.ParseDateKey(date, now)
	if err != nil {
		return domain.NaturalKey{}, err
	}
	return domain.NaturalKey{OwnerID: owner, Kind: k, DateKey: dateKey}, nil
}
