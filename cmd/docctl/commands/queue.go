package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docintake/client"

	"github.com/spf13/cobra"
)

const flagOlderThan = "older-than"

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and local job count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			stats, err := a.api.QueueStats(ctx)
			if err != nil {
				return fmt.Errorf("queue stats: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func (a *app) pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop workers from claiming new jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			if err := a.api.PauseQueue(ctx); err != nil {
				return fmt.Errorf("pause queue: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue paused")
			return nil
		},
	}
}

func (a *app) resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Let workers claim jobs again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			if err := a.api.ResumeQueue(ctx); err != nil {
				return fmt.Errorf("resume queue: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
			return nil
		},
	}
}

func (a *app) cleanCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove finished jobs older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--%s must be positive", flagOlderThan)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			res, err := a.api.CleanQueue(ctx, olderThan)
			if err != nil {
				return fmt.Errorf("clean queue: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().DurationVar(&olderThan, flagOlderThan, 24*time.Hour, "Age cutoff for finished jobs")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the API's dependencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			h, err := a.api.Health(ctx)
			if h != nil {
				if perr := printJSON(cmd.OutOrStdout(), h); perr != nil {
					return perr
				}
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && h != nil {
				return fmt.Errorf("service is %s", h.Status)
			}
			return err
		},
	}
}
