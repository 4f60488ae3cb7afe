package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/kvemu/internal/config"
	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/scenario"
)

func NewRunCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Replay scripted secret lifecycles",
		Long: `Run one or more scenario files against a fresh emulated vault each.

A scenario is a list of steps (set, get, delete, purge, recover, update,
list, advance, ...) with optional expectations. Every step runs; the command
fails if any expectation is not met.

Scenarios run on a virtual clock starting at 2024-01-01T00:00:00Z, so
'advance' steps can move past a scheduled purge date instantly.

Examples:
  # Replay a scenario
  kvemu run lifecycle.yaml

  # Machine-readable report
  kvemu run lifecycle.yaml --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			var firstFailure error
			failedScenarios := 0
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					return err
				}
				if sc.VaultURL == "" {
					sc.VaultURL = cfg.Definition.VaultURL
				}
				if sc.RecoverableDays == 0 {
					sc.RecoverableDays = cfg.Definition.RecoverableDays
				}

				report, err := scenario.Run(cmd.Context(), sc, scenario.Options{Logger: cfg.Logger})
				if err != nil {
					return err
				}

				if jsonOutput {
					err = report.WriteJSON(cmd.OutOrStdout())
				} else {
					err = report.WriteText(cmd.OutOrStdout())
				}
				if err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}

				if stepErr := report.Err(); stepErr != nil {
					failedScenarios++
					if firstFailure == nil {
						firstFailure = stepErr
					}
				}
			}

			if firstFailure != nil {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%d of %d scenario(s) failed", failedScenarios, len(args)),
					Details:    firstFailure.Error(),
					Suggestion: "Re-run with --debug to log every step",
					Err:        firstFailure,
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report in JSON format")

	return cmd
}
