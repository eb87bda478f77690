// Package cmd provides the command-line interface of flashsim.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/flashsim/config"
)

var (
	configPath string
	envFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flashsim",
	Short: "flashsim simulates garbage collection on a flash drive.",
	Long: `flashsim writes a host workload to a simulated flash drive, lets ` +
		`a GC policy reclaim space, and reports the resulting write ` +
		`amplification.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before reading the environment")
}

// loadConfig reads the configuration with the flags of cmd taking precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	return config.Load(configPath, cmd.Flags())
}
