package handlers

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/plan"
	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
)

// Runs starts job runs and reports how they ended.
type Runs interface {
	Start(ctx context.Context, jobID string) (bool, error)
	LastError(jobID string) error
}

// OutputReader reads persisted step artifacts.
type OutputReader interface {
	Read(jobID, stepName string, raw bool) (string, error)
}

type JobsHandler struct {
	store job.Store
	runs  Runs
	out   OutputReader
	now   func() time.Time
}

func NewJobsHandler(store job.Store, runs Runs, out OutputReader) *JobsHandler {
	return &JobsHandler{store: store, runs: runs, out: out, now: time.Now}
}

type CreateJobInput struct {
	Body plan.Plan
}

type CreateJobBody struct {
	JobID string `json:"job_id" doc:"Job ID"`
}

func (h *JobsHandler) Create(ctx context.Context, input *CreateJobInput) (*DataOutput[CreateJobBody], error) {
	j, steps, err := plan.Build(input.Body, h.now())
	if err != nil {
		return nil, storeError(err)
	}
	if err := h.store.Create(ctx, j, steps); err != nil {
		return nil, storeError(err)
	}
	log.Info().Str("job_id", j.ID).Str("target", j.Target).Int("steps", len(steps)).Msg("job created")
	return OK(CreateJobBody{JobID: j.ID}), nil
}

type ListJobsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Max results"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Offset"`
}

func (h *JobsHandler) List(ctx context.Context, input *ListJobsInput) (*DataOutput[[]job.Job], error) {
	jobs, err := h.store.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, storeError(err)
	}
	return OK(jobs), nil
}

type JobIDInput struct {
	ID string `path:"id" doc:"Job ID"`
}

// JobView is a job with its steps as seen by a late-joining observer.
type JobView struct {
	job.Detail
	LastError string `json:"last_error,omitempty" doc:"Engine error of the last run, if it aborted"`
}

func (h *JobsHandler) Get(ctx context.Context, input *JobIDInput) (*DataOutput[JobView], error) {
	d, err := h.store.Get(ctx, input.ID)
	if err != nil {
		return nil, storeError(err)
	}
	view := JobView{Detail: *d}
	if err := h.runs.LastError(d.ID); err != nil {
		view.LastError = err.Error()
	}
	return OK(view), nil
}

type StartJobBody struct {
	Started bool `json:"started" doc:"Whether this request started the run"`
}

// Start is idempotent: a job that is already running or finished reports
// started=false.
func (h *JobsHandler) Start(ctx context.Context, input *JobIDInput) (*DataOutput[StartJobBody], error) {
	started, err := h.runs.Start(ctx, input.ID)
	if err != nil {
		return nil, storeError(err)
	}
	return OK(StartJobBody{Started: started}), nil
}

type SummaryInput struct {
	ID   string `path:"id" doc:"Job ID"`
	Body struct {
		Summary string `json:"summary" doc:"Summary text produced outside the engine"`
	}
}

func (h *JobsHandler) SetSummary(ctx context.Context, input *SummaryInput) (*MsgOutput, error) {
	if err := h.store.SetSummary(ctx, input.ID, input.Body.Summary); err != nil {
		return nil, storeError(err)
	}
	return Msg("summary saved"), nil
}

type StepOutputInput struct {
	ID    string `path:"id" doc:"Job ID"`
	Order int    `path:"order" minimum:"1" doc:"Step order"`
	Raw   bool   `query:"raw" doc:"Return the output with control sequences intact"`
}

type StepOutputOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func (h *JobsHandler) StepOutput(ctx context.Context, input *StepOutputInput) (*StepOutputOutput, error) {
	d, err := h.store.Get(ctx, input.ID)
	if err != nil {
		return nil, storeError(err)
	}
	if input.Order > len(d.Steps) {
		return nil, huma.Error404NotFound("step not found")
	}
	step := d.Steps[input.Order-1]
	if step.StdoutPath == "" {
		return nil, huma.Error404NotFound("step has no output yet")
	}

	text, err := h.out.Read(d.ID, step.Name, input.Raw)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, huma.Error404NotFound("output not found")
	}
	if err != nil {
		return nil, storeError(err)
	}
	return &StepOutputOutput{ContentType: "text/plain; charset=utf-8", Body: []byte(text)}, nil
}
