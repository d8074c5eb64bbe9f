package database

import (
	"context"

	"github.com/rs/zerolog/log"
)

// StaleFailer fails jobs that were left RUNNING by a previous process.
type StaleFailer interface {
	FailStale(ctx context.Context) (int64, error)
}

// ReconcileOnStartup fails every job still marked RUNNING. It must run
// before the supervisor accepts work, since no driver survives a restart.
func ReconcileOnStartup(ctx context.Context, s StaleFailer) (int64, error) {
	failed, err := s.FailStale(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile: failed to fail stale jobs")
		return 0, err
	}
	log.Info().Int64("failed", failed).Msg("job reconciliation complete")
	return failed, nil
}
