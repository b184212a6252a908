package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forecaster",
	Short: "Directional classifiers for daily equity bars",
	Long: `Forecaster trains per-horizon directional classifiers on daily OHLCV bars.

It provides tools for:
  - Multi-horizon training with validation, calibration and initial thresholds
  - Ensembles over the holdout outputs of several algorithms
  - Walk-forward iterative training scored against realized outcomes
  - Live prediction logging, outcome backfill and threshold adaptation
  - Feature drift checks and a small HTTP status API`,
	SilenceUsage: true,
}

var configPath string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
}
