// Command wavectl is the control-plane CLI: it runs the autoscaling
// controller core and offers maintenance subcommands, unifying the
// original project's two binaries (wave-autoscale, wave-cli) into one.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
