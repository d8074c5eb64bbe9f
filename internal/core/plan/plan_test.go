package plan_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/plan"
	"github.com/stretchr/testify/require"
)

const sample = `
query: full recon on example.com
target: example.com
steps:
  - name: Subdomain Enumeration (subfinder)
    command: subfinder -d example.com -silent -o subs.txt
    outfile: subs.txt
  - name: Probe HTTP(S) (httpx)
    command: "[ -s subs.txt ] && httpx -l subs.txt || echo 'no hosts'"
`

func TestLoadAndBuild(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	p, err := plan.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j, steps, err := plan.Build(p, now)
	require.NoError(t, err)
	require.NotEmpty(t, j.ID)
	require.Equal(t, job.StatusPending, j.Status)
	require.Equal(t, job.TargetDomain, j.TargetType)
	require.Equal(t, now, j.CreatedAt)
	require.Equal(t, "full recon on example.com", j.Query)

	require.Len(t, steps, 2)
	for i, s := range steps {
		require.Equal(t, j.ID, s.JobID)
		require.Equal(t, i+1, s.Order)
		require.Equal(t, job.StepPending, s.Status)
	}
	require.Equal(t, "subs.txt", steps[0].Outfile)
	require.Equal(t, `[ -s subs.txt ] && httpx -l subs.txt || echo 'no hosts'`, steps[1].Command)
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()
	_, _, err := plan.Build(plan.Plan{Target: "example.com"}, time.Now())
	require.ErrorIs(t, err, plan.ErrEmptyPlan)

	_, _, err = plan.Build(plan.Plan{
		Target: "example.com",
		Steps:  []plan.StepSpec{{Name: "x", Command: ""}},
	}, time.Now())
	require.ErrorIs(t, err, job.ErrInvalidJob)

	_, err = plan.Parse([]byte("target: x\nsteps: []\n"))
	require.ErrorIs(t, err, plan.ErrEmptyPlan)

	_, err = plan.Parse([]byte("steps: [unterminated"))
	require.Error(t, err)
}

func TestBuildTargetType(t *testing.T) {
	t.Parallel()
	p := plan.Plan{Target: "10.0.0.1", TargetType: "galaxy", Steps: []plan.StepSpec{{Name: "a", Command: "true"}}}
	j, _, err := plan.Build(p, time.Now())
	require.NoError(t, err)
	require.Equal(t, job.TargetUnknown, j.TargetType)

	p.TargetType = ""
	j, _, err = plan.Build(p, time.Now())
	require.NoError(t, err)
	require.Equal(t, job.TargetIP, j.TargetType)
	require.Equal(t, "10.0.0.1", j.Query)
}

func TestInferTargetType(t *testing.T) {
	t.Parallel()
	cases := map[string]job.TargetType{
		"example.com":          job.TargetDomain,
		"sub.example.co.uk":    job.TargetDomain,
		"192.168.1.10":         job.TargetIP,
		"2001:db8::1":          job.TargetIP,
		"AS13335":              job.TargetASN,
		"https://example.com/": job.TargetURL,
		"a.com, b.com":         job.TargetMixed,
		"localhost":            job.TargetUnknown,
		"":                     job.TargetUnknown,
	}
	for in, want := range cases {
		require.Equal(t, want, plan.InferTargetType(in), in)
	}
}

func TestStaticPlanner(t *testing.T) {
	t.Parallel()
	s := plan.Static{Target: "example.com", Steps: []plan.StepSpec{{Name: "a", Command: "true"}}}
	p, err := s.Plan(t.Context(), "quick look")
	require.NoError(t, err)
	require.Equal(t, "quick look", p.Query)
	p.Steps[0].Command = "false"
	require.Equal(t, "true", s.Steps[0].Command)
}
