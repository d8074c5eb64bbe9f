package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/config"
	"github.com/adarshvs/Recon-MCP/internal/controller/api"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewServer builds the echo instance serving the job API for rt.
func NewServer(rt *Runtime) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupRouter(e, api.RouterConfig{
		Store:  rt.Store,
		Bus:    rt.Bus,
		Runs:   rt.Supervisor,
		Output: rt.Sink,
	})
	return e
}

// Run serves the HTTP API until ctx is cancelled or SIGINT/SIGTERM arrives,
// then stops accepting requests and cancels running jobs.
func Run(ctx context.Context, cfg *config.Config) error {
	ConfigureLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	e := NewServer(rt)
	addr := cfg.Server.Addr()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Ending runs and the bus first lets open event streams finish so
		// the HTTP shutdown does not wait on them.
		if err := rt.Supervisor.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("job runs did not stop in time")
		}
		rt.Bus.Close()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		return rt.Close(shutdownCtx)
	})
	return g.Wait()
}
