package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"astroguide/internal/domain"
	"astroguide/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and repair generation jobs",
	}
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	jobsCmd.AddCommand(newJobsSweepCommand(ctx))
	return jobsCmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(s *stores) error {
				job, err := s.jobs.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, buildJobDetailRows(job), []columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		status string
		owner  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildJobFilter(status, owner, limit)
			if err != nil {
				return err
			}
			return ctx.withStores(cmd.Context(), func(s *stores) error {
				items, err := s.jobs.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Status", "Owner", "Date", "Updated"},
					buildJobListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status (pending, running, ready, failed)")
	cmd.Flags().StringVar(&owner, "owner", "", "Only jobs of this owner")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to list")
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by kind and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(s *stores) error {
				stats, err := s.jobs.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildJobStatsRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Kind", "Pending", "Running", "Ready", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newJobsSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail jobs stuck in RUNNING",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := olderThan
			if age <= 0 {
				age = cfg.JobStuckTimeout
			}
			if age <= 0 {
				return fmt.Errorf("no stuck timeout configured; pass --older-than or set JOB_STUCK_TIMEOUT")
			}
			return ctx.withStores(cmd.Context(), func(s *stores) error {
				sweeper := jobs.NewSweeper(s.jobs, age, s.locker, ctx.logger)
				ids, err := sweeper.SweepOlderThan(cmd.Context(), age)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stuck jobs")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Failed %d stuck job(s)\n", len(ids))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Fail RUNNING jobs not updated for this long (default JOB_STUCK_TIMEOUT)")
	return cmd
}

func buildJobFilter(status, owner string, limit int) (domain.JobFilter, error) {
	filter := domain.JobFilter{OwnerID: strings.TrimSpace(owner), Limit: limit}
	if status = strings.TrimSpace(status); status != "" {
		s := domain.JobStatus(strings.ToUpper(status))
		switch s {
		case domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusReady, domain.JobStatusFailed:
			filter.Status = s
		default:
			return filter, fmt.Errorf("unknown status %q", status)
		}
	}
	return filter, nil
}
