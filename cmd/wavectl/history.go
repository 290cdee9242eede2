package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "AutoscalingHistory maintenance commands",
	}
	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete AutoscalingHistory rows older than the given duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than duration %q: %w", olderThan, err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx := context.Background()
			data, closeData, err := openDataLayer(ctx, cfg.DBURL)
			if err != nil {
				return fmt.Errorf("failed to open data layer: %w", err)
			}
			defer closeData()

			cutoff := time.Now().Add(-d)
			if err := data.RemoveOldAutoscalingHistory(ctx, cutoff); err != nil {
				return fmt.Errorf("prune history: %w", err)
			}
			fmt.Printf("pruned autoscaling history older than %s\n", cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "720h", "prune rows older than this duration (e.g. 720h for 30 days)")
	return cmd
}
