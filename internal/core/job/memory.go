package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. It is used when no database is
// configured and by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*memRecord
	nextID int64
	now    func() time.Time
}

type memRecord struct {
	job   Job
	steps []Step
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, j Job, steps []Step) error {
	if err := Validate(j, steps); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidJob, j.ID)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = m.now()
	}
	rec := &memRecord{job: j, steps: make([]Step, len(steps))}
	for i, s := range steps {
		m.nextID++
		s.ID = m.nextID
		rec.steps[i] = s
	}
	m.jobs[j.ID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := &Detail{Job: rec.job, Steps: make([]Step, len(rec.steps))}
	copy(d.Steps, rec.steps)
	return d, nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]Job, error) {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, rec := range m.jobs {
		jobs = append(jobs, rec.job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	if offset >= len(jobs) {
		return []Job{}, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.job.Status != StatusPending {
		return false, nil
	}
	now := m.now()
	rec.job.Status = StatusRunning
	rec.job.StartedAt = &now
	return true, nil
}

func (m *MemoryStore) SaveStep(_ context.Context, step Step, fields ...StepField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[step.JobID]
	if !ok {
		return ErrNotFound
	}
	if step.Order < 1 || step.Order > len(rec.steps) {
		return fmt.Errorf("step %d: %w", step.Order, ErrNotFound)
	}
	cur := &rec.steps[step.Order-1]
	if hasField(fields, FieldStatus) && !cur.Status.CanTransition(step.Status) {
		return fmt.Errorf("step %d %s -> %s: %w", step.Order, cur.Status, step.Status, ErrInvalidTransition)
	}
	for _, f := range fields {
		switch f {
		case FieldStatus:
			cur.Status = step.Status
		case FieldExitCode:
			cur.ExitCode = copyInt(step.ExitCode)
		case FieldReason:
			cur.Reason = step.Reason
		case FieldStdoutPath:
			cur.StdoutPath = step.StdoutPath
		case FieldStartedAt:
			cur.StartedAt = copyTime(step.StartedAt)
		case FieldFinishedAt:
			cur.FinishedAt = copyTime(step.FinishedAt)
		default:
			return fmt.Errorf("unknown step field %q", f)
		}
	}
	return nil
}

func (m *MemoryStore) Finish(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.Status != StatusRunning || !rec.job.Status.CanTransition(status) {
		return fmt.Errorf("job %s %s -> %s: %w", id, rec.job.Status, status, ErrInvalidTransition)
	}
	now := m.now()
	rec.job.Status = status
	rec.job.FinishedAt = &now
	return nil
}

func (m *MemoryStore) SetSummary(_ context.Context, id, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	rec.job.Summary = summary
	return nil
}

func (m *MemoryStore) FailStale(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for _, rec := range m.jobs {
		if rec.job.Status != StatusRunning {
			continue
		}
		for i := range rec.steps {
			if rec.steps[i].Status == StepRunning {
				finished := now
				rec.steps[i].Status = StepFail
				rec.steps[i].Reason = StaleReason
				rec.steps[i].FinishedAt = &finished
			}
		}
		finished := now
		rec.job.Status = StatusFail
		rec.job.FinishedAt = &finished
		n++
	}
	return n, nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
