package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbaity/herald/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Loads the configuration file, applies defaults, and checks it for errors without starting any services.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath := getConfigPath()
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is invalid: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Configuration '%s' is valid.\n", configPath)
		fmt.Printf("  listen address:  %s\n", cfg.Application.ListenAddr)
		fmt.Printf("  sidecar:         %s (pubsub %q, state store %q)\n",
			cfg.Sidecar.BaseURL, cfg.Sidecar.PubSubName, cfg.Sidecar.StateStore)
		fmt.Printf("  idempotency:     %s backend, ttl %ds\n",
			cfg.Idempotency.Backend, cfg.Idempotency.TTLSeconds)
		fmt.Printf("  consumers:       audit=%t notification=%t recurrence=%t sync=%t\n",
			cfg.Consumers.Audit.Enabled, cfg.Consumers.Notification.Enabled,
			cfg.Consumers.Recurrence.Enabled, cfg.Consumers.Sync.Enabled)
	},
}
