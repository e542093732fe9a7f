package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/secretshare/internal/exchange"
	"github.com/org/secretshare/internal/secret"
	"github.com/org/secretshare/internal/storage"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
}

// Server is the API server.
type Server struct {
	store    storage.Backend
	vault    *secret.Vault
	exchange *exchange.Service
	cfg      Config
	httpSrv  *http.Server
	isReady  atomic.Bool
}

// NewServer creates a Server around already-built services.
func NewServer(store storage.Backend, vault *secret.Vault, exch *exchange.Service, cfg Config) *Server {
	s := &Server{
		store:    store,
		vault:    vault,
		exchange: exch,
		cfg:      cfg,
	}
	s.isReady.Store(true)
	return s
}

// SetReady flips the readiness probe, e.g. while draining before shutdown.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)

	r.Handle("/metrics", MetricsHandler())
	r.Get("/livez", s.LivezHandler)
	r.Get("/readyz", s.ReadyzHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(limitBody)

		r.Post("/secrets", s.SecretCreateHandler)
		r.Get("/secrets/{shortId}", s.SecretReadHandler)
		r.Get("/secrets/{shortId}/status", s.SecretStatusHandler)
		r.Post("/secrets/{shortId}/unlock", s.SecretUnlockHandler)

		r.Post("/requests", s.RequestCreateHandler)
		r.Get("/requests/admin/{shortId}", s.RequestAdminReadHandler)
		r.Get("/requests/receive/{shortId}", s.RequestReceiverReadHandler)
		r.Post("/requests/receive/{shortId}", s.RequestReceiverWriteHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.BuildRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
