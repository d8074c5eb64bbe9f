package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidJob        = errors.New("invalid job")
)

// Store persists jobs and their steps.
//
// Writes to a single job's rows come from the one driver that owns the job,
// so implementations only need to serialize per job.
type Store interface {
	// Create inserts a PENDING job and all of its PENDING steps.
	Create(ctx context.Context, j Job, steps []Step) error
	// Get returns the job and its steps ordered by Order, or ErrNotFound.
	Get(ctx context.Context, id string) (*Detail, error)
	// List returns jobs newest first.
	List(ctx context.Context, limit, offset int) ([]Job, error)
	// Claim atomically moves a PENDING job to RUNNING and stamps started_at.
	// It returns false without mutating anything when the job is not PENDING.
	Claim(ctx context.Context, id string) (bool, error)
	// SaveStep writes the named fields of step, keyed by (JobID, Order).
	SaveStep(ctx context.Context, step Step, fields ...StepField) error
	// Finish moves a RUNNING job to status and stamps finished_at.
	Finish(ctx context.Context, id string, status Status) error
	SetSummary(ctx context.Context, id, summary string) error
	// FailStale fails jobs left RUNNING by a previous process and returns
	// how many were affected.
	FailStale(ctx context.Context) (int64, error)
}

// StaleReason is recorded on steps that were running when their process died.
const StaleReason = "interrupted"

// Validate checks that j and steps form a fresh submission.
func Validate(j Job, steps []Step) error {
	if j.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	if j.Status != StatusPending {
		return fmt.Errorf("%w: status %s, want %s", ErrInvalidJob, j.Status, StatusPending)
	}
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidJob)
	}
	for i, s := range steps {
		if s.JobID != j.ID {
			return fmt.Errorf("%w: step %d belongs to job %q", ErrInvalidJob, s.Order, s.JobID)
		}
		if s.Order != i+1 {
			return fmt.Errorf("%w: step order %d at position %d", ErrInvalidJob, s.Order, i+1)
		}
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("%w: step %d needs a name and a command", ErrInvalidJob, s.Order)
		}
		if s.Status != StepPending {
			return fmt.Errorf("%w: step %d status %s", ErrInvalidJob, s.Order, s.Status)
		}
	}
	return nil
}

func hasField(fields []StepField, f StepField) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
