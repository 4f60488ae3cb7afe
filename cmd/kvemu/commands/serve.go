package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/systmms/kvemu/internal/config"
	"github.com/systmms/kvemu/internal/scenario"
	"github.com/systmms/kvemu/internal/server"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var (
		listenAddr string
		seedFile   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an emulated vault over HTTP",
		Long: `Start an HTTP server backed by a single in-memory vault.

Routes:
  PUT    /secrets/{name}                   set a secret
  GET    /secrets/{name}[/{version}]       get a secret
  PATCH  /secrets/{name}[/{version}]       update properties
  DELETE /secrets/{name}                   soft-delete
  GET    /secrets, /secrets/{name}/versions
  GET    /deletedsecrets[/{name}]
  DELETE /deletedsecrets/{name}            purge
  POST   /deletedsecrets/{name}/recover
  GET    /healthz, /metrics

State lives in memory and is lost when the server stops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			if listenAddr != "" {
				def.ListenAddr = listenAddr
			}
			if seedFile == "" && def.SeedFile != "" {
				seedFile = def.SeedFile
				if !filepath.IsAbs(seedFile) {
					seedFile = filepath.Join(filepath.Dir(cfg.Path), seedFile)
				}
			}

			registry := prometheus.NewRegistry()
			client, err := def.NewClient(cfg.Logger, registry)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if seedFile != "" {
				names, err := scenario.Seed(ctx, client, seedFile)
				if err != nil {
					return err
				}
				cfg.Logger.Info("Seeded %d secret(s) from %s", len(names), seedFile)
			}

			srv := server.New(client, registry, cfg.Logger, server.Config{
				ListenAddr:    def.ListenAddr,
				PurgeInterval: def.PurgeEvery(),
			})
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			cfg.Logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides listen_addr)")
	cmd.Flags().StringVar(&seedFile, "seed", "", ".env file to load before serving (overrides seed_file)")

	return cmd
}
