// Package cli defines the Cobra commands of the smartpulse binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
	"github.com/smart-pulse-M1-GI/frontend/internal/logger"
)

const serviceName = "smartpulse"

var (
	cfgPath string
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "smartpulse",
	Short: "Live cardiac monitoring dashboard gateway",
	Long: `smartpulse serves the cardiac monitoring dashboard: it follows the live
pulse stream of a patient, keeps rolling heart-rate metrics, checks them
against the patient's thresholds and drives monitoring sessions on the
backend.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerDoctorCmd)
}

// setup loads the configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("loading configuration: %w", err)
	}
	log, level := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Service: serviceName,
	})
	if cfg.EnvFile != "" {
		log.Debug("Loaded environment file", zap.String("path", cfg.EnvFile))
	}
	return cfg, log, level, nil
}
