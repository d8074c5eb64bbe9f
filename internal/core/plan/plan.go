package plan

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/util"
	"gopkg.in/yaml.v3"
)

var ErrEmptyPlan = errors.New("plan has no steps")

// StepSpec is one fully resolved command. Command is passed to the shell
// as is.
type StepSpec struct {
	Name    string `json:"name" yaml:"name" doc:"Display name, also used to name output artifacts"`
	Command string `json:"command" yaml:"command" doc:"Shell command line, already quoted"`
	Outfile string `json:"outfile,omitempty" yaml:"outfile,omitempty" required:"false" doc:"File the command writes, if any"`
}

// Plan is an ordered list of steps for one target.
type Plan struct {
	Query      string     `json:"query,omitempty" yaml:"query" required:"false"`
	Target     string     `json:"target" yaml:"target"`
	TargetType string     `json:"target_type,omitempty" yaml:"target_type" required:"false" enum:"domain,ip,asn,url,mixed,unknown"`
	Steps      []StepSpec `json:"steps" yaml:"steps" minItems:"1"`
}

// Planner turns a free-text query into a plan. How it resolves tools and
// quotes arguments is its own business.
type Planner interface {
	Plan(ctx context.Context, query string) (Plan, error)
}

// Static always returns the same plan.
type Static Plan

func (s Static) Plan(_ context.Context, query string) (Plan, error) {
	p := Plan(s)
	p.Steps = append([]StepSpec(nil), s.Steps...)
	if query != "" {
		p.Query = query
	}
	return p, nil
}

// Parse decodes a YAML (or JSON) plan document.
func Parse(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	return p, nil
}

func LoadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Build turns p into a new PENDING job with steps numbered 1..N in plan
// order.
func Build(p Plan, now time.Time) (job.Job, []job.Step, error) {
	if len(p.Steps) == 0 {
		return job.Job{}, nil, ErrEmptyPlan
	}

	target := strings.TrimSpace(p.Target)
	tt := job.ParseTargetType(p.TargetType)
	if p.TargetType == "" {
		tt = InferTargetType(target)
	}
	query := p.Query
	if query == "" {
		query = target
	}

	j := job.Job{
		ID:         util.NewID(),
		Query:      query,
		Target:     target,
		TargetType: tt,
		Status:     job.StatusPending,
		CreatedAt:  now.UTC(),
	}
	steps := make([]job.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = job.Step{
			JobID:   j.ID,
			Order:   i + 1,
			Name:    strings.TrimSpace(s.Name),
			Command: s.Command,
			Outfile: s.Outfile,
			Status:  job.StepPending,
		}
	}
	if err := job.Validate(j, steps); err != nil {
		return job.Job{}, nil, err
	}
	return j, steps, nil
}

var domainRe = regexp.MustCompile(`^[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
var asnRe = regexp.MustCompile(`^(?i:as)\d+$`)

// InferTargetType guesses the kind of a single target.
func InferTargetType(target string) job.TargetType {
	switch {
	case target == "":
		return job.TargetUnknown
	case strings.ContainsAny(target, " ,"):
		return job.TargetMixed
	case asnRe.MatchString(target):
		return job.TargetASN
	}
	if _, err := netip.ParseAddr(target); err == nil {
		return job.TargetIP
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
		return job.TargetURL
	}
	if domainRe.MatchString(target) {
		return job.TargetDomain
	}
	return job.TargetUnknown
}
