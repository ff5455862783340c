package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "rstisim",
	Short: "Individual-based discrete-event simulator of sexually transmitted infections",
	Long: "rstisim simulates a population of persons, their partnerships and the infections " +
		"passed between them. Models are described in YAML or TOML files.",
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up the flags shared by all subcommands and attaches the subcommands
func init() {
	rootCmd.PersistentFlags().String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("settings", "", "Settings file (YAML, TOML or JSON) supplying flag values")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Model configuration file (.yaml or .toml)")

	rootCmd.AddCommand(runCmd, checkCmd, sampleCmd)
}
