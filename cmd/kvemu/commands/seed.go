package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/systmms/kvemu/internal/config"
	"github.com/systmms/kvemu/internal/scenario"
)

func NewSeedCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file.env>",
		Short: "Check how a .env file maps onto secrets",
		Long: `Load a .env file into a fresh emulated vault and list the secrets it
produces. Underscores in variable names become dashes, so DB_PASSWORD is
stored as DB-PASSWORD. Values are never printed.

Use the same file as seed_file (or 'kvemu serve --seed') to preload a server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			client, err := cfg.Definition.NewClient(cfg.Logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			names, err := scenario.Seed(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "SECRET\tVERSION\tID\n")
			_, _ = fmt.Fprintf(w, "------\t-------\t--\n")
			for _, name := range names {
				resp, err := client.GetSecret(cmd.Context(), name, "", nil)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, resp.ID.Version(), *resp.ID)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			cfg.Logger.Info("%d secret(s) from %s", len(names), args[0])
			return nil
		},
	}

	return cmd
}
