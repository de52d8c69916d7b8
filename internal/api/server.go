// Package api serves the calculator over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/telemetry"
)

// Server exposes the calculator. Store is optional; without it impacts
// lookups answer 503.
type Server struct {
	Version string
	Token   string

	engines *engine.Registry
	calcs   map[string]*core.Calculator
	store   *core.Store
	health  *telemetry.Health

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

// New builds a server with one calculator per registered engine.
func New(version string, engines *engine.Registry, opts core.Options, store *core.Store) *Server {
	s := &Server{
		Version: version,
		engines: engines,
		calcs:   map[string]*core.Calculator{},
		store:   store,
		health:  telemetry.NewHealth(),
	}
	for _, name := range engines.Names() {
		sim, _ := engines.Get(name)
		s.calcs[name] = core.NewCalculator(sim, opts)
	}
	s.health.Register("engines", func() telemetry.HealthCheck {
		if len(s.calcs) == 0 {
			return telemetry.HealthCheck{Name: "engines", Status: telemetry.HealthStatusUnhealthy, Message: "no engine configured"}
		}
		return telemetry.HealthCheck{Name: "engines", Status: telemetry.HealthStatusHealthy, Message: fmt.Sprintf("%d engine(s)", len(s.calcs))}
	})
	if store != nil {
		s.health.Register("store", func() telemetry.HealthCheck {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				return telemetry.HealthCheck{Name: "store", Status: telemetry.HealthStatusDegraded, Message: err.Error()}
			}
			return telemetry.HealthCheck{Name: "store", Status: telemetry.HealthStatusHealthy, Message: "ok"}
		})
	}
	return s
}

// calculator returns the calculator of the named engine, or of the default
// engine when name is empty.
func (s *Server) calculator(name string) (*core.Calculator, error) {
	sim, err := s.engines.Get(name)
	if err != nil {
		return nil, err
	}
	return s.calcs[sim.Name()], nil
}

// Handler returns the routed handler with request ids, logging and token
// auth applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return requestID(logRequests(s.auth(mux)))
}

// Serve starts the server, over TLS when cfg names a certificate.
func (s *Server) Serve(cfg engine.Config) error {
	handler := s.Handler()
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	tc := TLSConfigFrom(cfg)
	if tc.ServerCert != "" {
		tlsConfig, err := ConfigureTLS(tc)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
		srv.Handler = MTLSMiddleware(tc.RequireAuth)(handler)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.srv = srv
	s.mu.Unlock()

	if srv.TLSConfig == nil {
		log.Info().Str("addr", cfg.Server.Addr).Strs("engines", s.engines.Names()).Msg("Starting API server")
		return srv.ListenAndServe()
	}
	log.Info().
		Str("addr", cfg.Server.Addr).
		Bool("mtls_required", tc.RequireAuth).
		Msg("Starting API server with TLS")
	return srv.ListenAndServeTLS("", "")
}

// Shutdown stops the server gracefully. A server that has not started yet
// will refuse to.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
