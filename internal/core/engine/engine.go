package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/process"
	"github.com/rs/zerolog/log"
)

// Executor runs one step's command.
type Executor interface {
	Execute(ctx context.Context, command string, timeout time.Duration, onChunk process.ChunkFunc) (process.Result, error)
}

// Sink persists a step's output and returns the clean artifact path.
type Sink interface {
	Persist(jobID, stepName, rawOutput string) (string, error)
}

// Publisher fans events out to a job's observers.
type Publisher interface {
	Publish(topic string, e event.Event) error
}

const (
	DefaultStepTimeout = 180 * time.Second
	finishTimeout      = 10 * time.Second

	// AbortReason is recorded on a step that was running when the job aborted.
	AbortReason = "aborted"
)

type Config struct {
	StepTimeout time.Duration
}

// Engine drives a job's steps one at a time. A step that fails or times out
// is recorded and the sweep continues; only engine-level errors abort the
// remaining steps and fail the job.
type Engine struct {
	store   job.Store
	exec    Executor
	sink    Sink
	bus     Publisher
	timeout time.Duration
	now     func() time.Time
}

func New(store job.Store, exec Executor, sink Sink, bus Publisher, cfg Config) *Engine {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	return &Engine{
		store:   store,
		exec:    exec,
		sink:    sink,
		bus:     bus,
		timeout: cfg.StepTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run claims the job and executes it to completion. It reports whether this
// call won the claim; losing the claim is a no-op, not an error.
func (e *Engine) Run(ctx context.Context, jobID string) (bool, error) {
	claimed, err := e.Claim(ctx, jobID)
	if err != nil || !claimed {
		return false, err
	}
	return true, e.Execute(ctx, jobID)
}

// Claim moves a PENDING job to RUNNING. Only the caller that gets true may
// go on to Execute the job.
func (e *Engine) Claim(ctx context.Context, jobID string) (bool, error) {
	claimed, err := e.store.Claim(ctx, jobID)
	if err != nil {
		if !errors.Is(err, job.ErrNotFound) {
			e.publish(jobID, event.JobDone(jobID, string(job.StatusFail), err.Error()))
		}
		return false, fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		log.Debug().Str("job_id", jobID).Msg("job already claimed, skipping")
	}
	return claimed, nil
}

// Execute runs the steps of a job claimed by this process. A non-nil error
// is an engine-level failure, after which the job has been marked FAIL.
func (e *Engine) Execute(ctx context.Context, jobID string) error {
	logger := log.With().Str("job_id", jobID).Logger()
	logger.Info().Msg("job started")
	if err := e.drive(ctx, jobID); err != nil {
		logger.Error().Err(err).Msg("job aborted")
		e.abort(ctx, jobID, err)
		return err
	}
	logger.Info().Msg("job done")
	return nil
}

func (e *Engine) drive(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
			log.Error().Str("job_id", jobID).Bytes("stack", debug.Stack()).Msg("recovered engine panic")
		}
	}()

	d, err := e.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	for i, step := range d.Steps {
		if step.Order != i+1 {
			return fmt.Errorf("step order %d at position %d: %w", step.Order, i+1, job.ErrInvalidJob)
		}
	}

	for _, step := range d.Steps {
		if err := e.runStep(ctx, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", step.Order, step.Name, err)
		}
	}

	if err := e.store.Finish(ctx, jobID, job.StatusDone); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if err := e.bus.Publish(jobID, event.JobDone(jobID, string(job.StatusDone), "")); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("publish job_done")
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, step job.Step) error {
	logger := log.With().Str("job_id", step.JobID).Int("order", step.Order).Str("step", step.Name).Logger()

	started := e.now()
	step.Status = job.StepRunning
	step.StartedAt = &started
	if err := e.store.SaveStep(ctx, step, job.FieldStatus, job.FieldStartedAt); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if err := e.bus.Publish(step.JobID, event.StepStart(step.JobID, step.Name, step.Order)); err != nil {
		return fmt.Errorf("publish step_start: %w", err)
	}
	logger.Debug().Msg("step started")

	onChunk := func(stream process.Stream, text string) error {
		return e.bus.Publish(step.JobID, event.Stream(step.JobID, step.Name, step.Order, string(stream), text))
	}
	res, err := e.exec.Execute(ctx, step.Command, e.timeout, onChunk)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	finished := e.now()
	code := res.ExitCode
	step.ExitCode = &code
	step.Reason = res.Reason
	step.FinishedAt = &finished
	switch res.Class {
	case process.ClassOK:
		step.Status = job.StepOK
	case process.ClassTimeout:
		step.Status = job.StepTimeout
	default:
		step.Status = job.StepFail
	}
	if err := e.store.SaveStep(ctx, step, job.FieldStatus, job.FieldExitCode, job.FieldReason, job.FieldFinishedAt); err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	path, err := e.sink.Persist(step.JobID, step.Name, res.Output)
	if err != nil {
		return fmt.Errorf("persist output: %w", err)
	}
	step.StdoutPath = path
	if err := e.store.SaveStep(ctx, step, job.FieldStdoutPath); err != nil {
		return fmt.Errorf("record output path: %w", err)
	}

	if err := e.bus.Publish(step.JobID, event.StepEnd(step.JobID, step.Name, step.Order, string(step.Status), step.ExitCode)); err != nil {
		return fmt.Errorf("publish step_end: %w", err)
	}
	logger.Debug().Str("status", string(step.Status)).Int("exit_code", code).
		Dur("elapsed", res.Finished.Sub(res.Started)).Msg("step finished")
	return nil
}

// abort marks a claimed job FAIL and tells observers why. It outlives ctx
// so a shutdown still leaves a terminal record.
func (e *Engine) abort(ctx context.Context, jobID string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	e.closeRunningSteps(fctx, jobID)
	if err := e.store.Finish(fctx, jobID, job.StatusFail); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("mark job failed")
	}
	e.publish(jobID, event.JobDone(jobID, string(job.StatusFail), cause.Error()))
}

// closeRunningSteps fails the step that was cut off. Startup reconciliation
// only repairs steps of jobs still RUNNING, so it would never reach this one.
func (e *Engine) closeRunningSteps(ctx context.Context, jobID string) {
	d, err := e.store.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("load job to close steps")
		return
	}
	finished := e.now()
	for _, step := range d.Steps {
		if step.Status != job.StepRunning {
			continue
		}
		step.Status = job.StepFail
		step.Reason = AbortReason
		step.FinishedAt = &finished
		if err := e.store.SaveStep(ctx, step, job.FieldStatus, job.FieldReason, job.FieldFinishedAt); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Int("order", step.Order).Msg("close running step")
		}
	}
}

func (e *Engine) publish(jobID string, ev event.Event) {
	if err := e.bus.Publish(jobID, ev); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Str("event", string(ev.Type)).Msg("publish failed")
	}
}
