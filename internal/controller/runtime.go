package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adarshvs/Recon-MCP/internal/config"
	"github.com/adarshvs/Recon-MCP/internal/core/engine"
	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/output"
	"github.com/adarshvs/Recon-MCP/internal/core/process"
	"github.com/adarshvs/Recon-MCP/internal/core/supervisor"
	"github.com/adarshvs/Recon-MCP/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runtime is the set of components shared by the HTTP server and the
// one-shot run command.
type Runtime struct {
	Store      job.Store
	Bus        event.Bus
	Sink       *output.Sink
	Engine     *engine.Engine
	Supervisor *supervisor.Supervisor

	pool *pgxpool.Pool
}

// NewRuntime opens the job store and builds the engine around it. With a
// database configured, migrations are applied and jobs left RUNNING by a
// previous process are failed before anything new can start.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}

	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("database connect: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		store := job.NewPostgresStore(pool)
		if _, err := database.ReconcileOnStartup(ctx, store); err != nil {
			pool.Close()
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		rt.pool = pool
		rt.Store = store
	} else {
		log.Warn().Msg("no database configured, jobs are kept in memory")
		rt.Store = job.NewMemoryStore()
	}

	if err := os.MkdirAll(cfg.Jobs.Dir, 0o755); err != nil {
		rt.closeStore()
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}

	rt.Bus = event.NewBus(cfg.Jobs.SubscriberBuffer)
	rt.Sink = output.NewSink(cfg.Jobs.Dir)
	rt.Engine = engine.New(rt.Store,
		process.New(process.WithShell(cfg.Jobs.Shell)),
		rt.Sink, rt.Bus,
		engine.Config{StepTimeout: cfg.Jobs.StepTimeout})
	rt.Supervisor = supervisor.New(rt.Engine)

	log.Info().Str("jobs_dir", cfg.Jobs.Dir).Dur("step_timeout", cfg.Jobs.StepTimeout).
		Bool("postgres", rt.pool != nil).Msg("runtime ready")
	return rt, nil
}

// Close cancels running jobs, waits for them to record their outcome and
// releases the store.
func (rt *Runtime) Close(ctx context.Context) error {
	err := rt.Supervisor.Shutdown(ctx)
	rt.Bus.Close()
	rt.closeStore()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown runs: %w", err)
	}
	return nil
}

func (rt *Runtime) closeStore() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// ConfigureLogging applies the level and output format to the global
// logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	log.Debug().Str("level", cfg.Level).Msg("log level configured")
}
