package main

import (
	"github.com/spf13/cobra"

	"github.com/wave-autoscale/wave-autoscale-go/internal/config"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
)

var (
	flagConfigFile string
	flagQuiet      bool
	flagDebug      bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wavectl",
		Short: "Wave Autoscale controller runtime",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(flagQuiet, flagDebug)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: ./wave-config.yaml or standard search paths)")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress non-error log output")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug-level log output")

	root.AddCommand(newRunCmd(), newConfigCmd(), newHistoryCmd())
	return root
}

func loadConfig() (config.WaveConfig, error) {
	return config.Load(flagConfigFile)
}
