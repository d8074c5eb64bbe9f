package job

import "time"

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFail    Status = "FAIL"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFail
}

// CanTransition reports whether a job may move from s to next.
// Jobs only move forward and never skip RUNNING.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusDone || next == StatusFail
	}
	return false
}

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepRunning StepStatus = "RUNNING"
	StepOK      StepStatus = "OK"
	StepFail    StepStatus = "FAIL"
	StepTimeout StepStatus = "TIMEOUT"
)

func (s StepStatus) Terminal() bool {
	return s == StepOK || s == StepFail || s == StepTimeout
}

func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StepPending:
		return next == StepRunning
	case StepRunning:
		return next.Terminal()
	}
	return false
}

// predecessors returns the statuses a step may hold right before moving to s.
func (s StepStatus) predecessors() []string {
	switch {
	case s == StepRunning:
		return []string{string(StepPending)}
	case s.Terminal():
		return []string{string(StepRunning)}
	}
	return nil
}

// TargetType classifies what a job's target looks like.
type TargetType string

const (
	TargetDomain  TargetType = "domain"
	TargetIP      TargetType = "ip"
	TargetASN     TargetType = "asn"
	TargetURL     TargetType = "url"
	TargetMixed   TargetType = "mixed"
	TargetUnknown TargetType = "unknown"
)

// ParseTargetType maps s onto a known TargetType, falling back to unknown.
func ParseTargetType(s string) TargetType {
	switch t := TargetType(s); t {
	case TargetDomain, TargetIP, TargetASN, TargetURL, TargetMixed:
		return t
	}
	return TargetUnknown
}

// Job is one end-to-end execution of an ordered step list for a target.
type Job struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Target     string     `json:"target"`
	TargetType TargetType `json:"target_type"`
	Status     Status     `json:"status"`
	Summary    string     `json:"summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Step is one external command invocation within a job. Order is unique
// within the job and contiguous from 1.
type Step struct {
	ID         int64      `json:"id"`
	JobID      string     `json:"job_id"`
	Order      int        `json:"order"`
	Name       string     `json:"name"`
	Command    string     `json:"command"`
	Outfile    string     `json:"outfile,omitempty"`
	Status     StepStatus `json:"status"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	StdoutPath string     `json:"stdout_path,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Detail is a job together with its steps in ascending order.
type Detail struct {
	Job
	Steps []Step `json:"steps"`
}

// StepField names a mutable step column for partial saves.
type StepField string

const (
	FieldStatus     StepField = "status"
	FieldExitCode   StepField = "exit_code"
	FieldReason     StepField = "reason"
	FieldStdoutPath StepField = "stdout_path"
	FieldStartedAt  StepField = "started_at"
	FieldFinishedAt StepField = "finished_at"
)
