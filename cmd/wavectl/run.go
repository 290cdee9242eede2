package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wave-autoscale/wave-autoscale-go/internal/app"
	"github.com/wave-autoscale/wave-autoscale-go/internal/definitionsync"
)

const localDefinitionFileName = "wave-definition.yaml"

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the autoscaling controller runtime until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runController()
		},
	}
}

// runController wires the data layer, adapter registry, and
// AppController together, syncs the local definition file, honors
// reset_definitions_on_startup, and blocks until a signal or data-layer
// failure ends the run.
func runController() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("received interrupt, shutting down")
		cancel()
	}()

	data, closeData, err := openDataLayer(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to open data layer: %w", err)
	}
	defer closeData()

	if cfg.ResetDefinitionsOnStartup {
		if err := data.DeleteAllMetrics(ctx); err != nil {
			return fmt.Errorf("reset metrics: %w", err)
		}
		if err := data.DeleteAllScalingComponents(ctx); err != nil {
			return fmt.Errorf("reset scaling components: %w", err)
		}
		if err := data.DeleteAllPlans(ctx); err != nil {
			return fmt.Errorf("reset scaling plans: %w", err)
		}
		log.Info().Msg("cleared definitions on startup (reset_definitions_on_startup=true)")
	}

	if err := definitionsync.SyncFile(ctx, data, localDefinitionFileName); err != nil {
		log.Error().Err(err).Str("file", localDefinitionFileName).Msg("failed to sync local definition file")
	}

	controller := app.New(data, cfg.MetricBufferSizeKB, 1000, builtinAdapterFactories(), cfg.AutoscalingHistoryRetention)

	runErr := controller.Run(ctx)
	controller.Stop()

	select {
	case <-ctx.Done():
		// Cancelled by our own signal handler: exit 130 per spec.md's
		// Ctrl-C exit code.
		os.Exit(130)
	default:
	}

	return runErr
}
