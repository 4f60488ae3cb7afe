package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/kvemu/internal/config"
)

const exampleConfig = `version: 0

# Base URL used to build secret identifiers.
vault_url: https://kvemu.vault.azure.net

# How long deleted secrets stay recoverable (7-90).
recoverable_days: 90

# Address 'kvemu serve' listens on and how often it purges expired secrets.
listen_addr: 127.0.0.1:8443
purge_interval: 1m

# Optional .env file loaded into the vault when 'kvemu serve' starts.
# KEY_NAME=value is stored as secret KEY-NAME.
# seed_file: dev.env

# Optional credential. The emulator never authenticates, but building the
# credential catches configuration mistakes before they reach a real vault.
# credential:
#   tenant_id: 00000000-0000-0000-0000-000000000000
#   client_id: 00000000-0000-0000-0000-000000000000
#   client_secret: <client-secret>
#   # or:
#   use_managed_identity: true
`

func NewInitCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new kvemu configuration",
		Long:  "Create a kvemu.yaml file with the default settings spelled out",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfg.Path); err == nil {
				return fmt.Errorf("%s already exists. Remove it first if you want to reinitialize", cfg.Path)
			}

			if err := os.WriteFile(cfg.Path, []byte(exampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cfg.Logger.Info("Created %s", cfg.Path)
			cfg.Logger.Info("Next steps:")
			cfg.Logger.Info("  1. Run 'kvemu run scenario.yaml' to replay a scripted secret lifecycle")
			cfg.Logger.Info("  2. Run 'kvemu serve' to expose the vault over HTTP")
			return nil
		},
	}

	return cmd
}
