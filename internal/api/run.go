package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/engine/policyengine"
	"github.com/3cpo-dev/saltamt/internal/impacts"
	"github.com/3cpo-dev/saltamt/internal/telemetry"
)

// Run serves cfg until ctx is cancelled, then drains in-flight requests.
// The store at cfg.Cache.Path backs impacts lookups, and also caches engine
// results when caching is enabled. A configured impacts CSV is imported at
// startup.
func Run(ctx context.Context, version string, cfg engine.Config) error {
	telemetry.InitGlobal(cfg.Telemetry.Enabled, time.Duration(cfg.Telemetry.MetricsInterval)*time.Second)
	defer telemetry.Shutdown()

	reg, err := policyengine.NewRegistry(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	store, err := core.NewStore(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Impacts.CSV != "" {
		if _, err := impacts.ImportFile(ctx, store, cfg.Impacts.CSV); err != nil {
			log.Warn().Err(err).Str("path", cfg.Impacts.CSV).Msg("Impacts import failed")
		}
	}

	opts := core.OptionsFromConfig(cfg)
	if cfg.Cache.Enabled {
		opts.Store = store
	}
	srv := New(version, reg, opts, store)
	srv.Token = cfg.Server.Token
	if srv.Token == "" {
		log.Warn().Msg("API token not set; all routes are open")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(cfg) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
