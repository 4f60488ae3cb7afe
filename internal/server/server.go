// Package server exposes an emulated vault over HTTP.
//
// Bodies use Key Vault's JSON shapes (the azsecrets serializers produce and
// read them) but the routes are a simplified subset with no api-version
// handling or authentication.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/kvemu/internal/logging"
	"github.com/systmms/kvemu/pkg/keyvault"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration.
type Config struct {
	ListenAddr string
	// PurgeInterval is how often expired deleted secrets are purged. Zero
	// disables the sweep.
	PurgeInterval time.Duration
}

// Server serves one emulated vault.
type Server struct {
	client   *keyvault.Client
	registry *prometheus.Registry
	metrics  *httpMetrics
	logger   *logging.Logger
	cfg      Config
	httpSrv  *http.Server
}

// New creates a Server for client. The registry backs /metrics and receives
// the request metrics; pass the one the client registered its own metrics
// with so both appear together. A nil registry gets a private one.
func New(client *keyvault.Client, registry *prometheus.Registry, logger *logging.Logger, cfg Config) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		client:   client,
		registry: registry,
		metrics:  newHTTPMetrics(registry),
		logger:   logger,
		cfg:      cfg,
	}
}

// Router wires up all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(s.observe)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)

	r.Route("/secrets", func(r chi.Router) {
		r.Get("/", s.handleListSecrets)
		r.Put("/{name}", s.handleSetSecret)
		r.Get("/{name}", s.handleGetSecret)
		r.Patch("/{name}", s.handleUpdateSecret)
		r.Delete("/{name}", s.handleDeleteSecret)
		r.Get("/{name}/versions", s.handleListVersions)
		r.Get("/{name}/{version}", s.handleGetSecret)
		r.Patch("/{name}/{version}", s.handleUpdateSecret)
	})

	r.Route("/deletedsecrets", func(r chi.Router) {
		r.Get("/", s.handleListDeleted)
		r.Get("/{name}", s.handleGetDeleted)
		r.Delete("/{name}", s.handlePurge)
		r.Post("/{name}/recover", s.handleRecover)
	})

	return r
}

// ListenAndServe listens on the configured address and serves until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the purge sweep until ctx is
// canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Serving %s on http://%s", s.client.VaultURL(), ln.Addr())
		if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.RunPurger(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// RunPurger purges expired deleted secrets every PurgeInterval until ctx is
// canceled.
func (s *Server) RunPurger(ctx context.Context) {
	if s.cfg.PurgeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeExpired(ctx)
		}
	}
}

func (s *Server) purgeExpired(ctx context.Context) {
	purged, err := s.client.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Purge sweep failed: %v", err)
		}
		return
	}
	for _, name := range purged {
		s.logger.Info("Purged expired secret %s", name)
	}
}
