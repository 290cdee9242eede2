package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without starting the controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.AutoscalingHistoryRetention != "" {
				if _, err := time.ParseDuration(cfg.AutoscalingHistoryRetention); err != nil {
					return fmt.Errorf("config error: invalid autoscaling_history_retention %q: %w", cfg.AutoscalingHistoryRetention, err)
				}
			}
			fmt.Printf("config OK: db_url=%s host=%s port=%d metric_buffer_size_kb=%d\n",
				cfg.DBURL, cfg.Host, cfg.Port, cfg.MetricBufferSizeKB)
			return nil
		},
	}
}
