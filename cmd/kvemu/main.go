package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/kvemu/cmd/kvemu/commands"
	"github.com/systmms/kvemu/internal/config"
	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "kvemu",
		Short: "Key Vault secrets emulator",
		Long: `kvemu emulates the secret lifecycle of an Azure Key Vault in memory:
versioned set/get, soft delete, recover, purge and property updates.

Replay scripted lifecycles with 'kvemu run' or serve a vault over HTTP with
'kvemu serve'.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewInitCommand(cfg),
		commands.NewRunCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewSeedCommand(cfg),
		commands.NewCompletionCommand(),
	)

	return rootCmd.Execute()
}
