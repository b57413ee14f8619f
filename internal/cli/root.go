// Package cli defines the herald command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file, bound to the persistent flag.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Herald propagates task lifecycle events between services",
	Long: `Herald publishes task lifecycle events to the broker, hosts the
idempotent consumers that react to them (audit log, notifications,
recurring-task generation, client sync), and manages scheduled reminder
callbacks.

Run 'herald help <command>' for more information on a specific command.`,
}

// Execute runs the command tree. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

func getConfigPath() string {
	return cfgFile
}
