// Package cmd defines the pialarm command line interface.
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/carlosefr/pialarm/internal/config"
	"github.com/carlosefr/pialarm/internal/daemon"
	"github.com/carlosefr/pialarm/internal/logger"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// verbose enables debug logging.
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "pialarm",
		Short: "Run the premises alarm controller.",
		Long: `Runs the alarm controller daemon for a premises security system driven
by digital sensor inputs (door contacts, motion detectors, tamper switches)
and actuator outputs (siren, strobe, panel buzzer, status LEDs) through the
Linux GPIO character device.

The alarm is armed and disarmed from a dedicated switch input, enforces the
configured grace periods, and rearms itself automatically after sounding.
State transitions are optionally published to an MQTT broker.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := zapcore.InfoLevel
			if verbose {
				level = zapcore.DebugLevel
			}
			log := logger.New(level)
			defer log.Sync() //nolint:errcheck

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// A termination signal must still go through the controller's
			// teardown so the outputs end up low.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return daemon.Run(ctx, daemon.Options{Config: cfg, Logger: log})
		},
	}
)

// Execute runs the pialarm CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "produce extra output for debugging purposes")
}
