package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the forecaster CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forecaster version %s\n", version)
		fmt.Println("Per-horizon directional classifiers with walk-forward training and live monitoring")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
