package supervisor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrShutdown = errors.New("supervisor is shut down")

// errAlreadyRunning marks a start request for a job this process is
// already driving.
var errAlreadyRunning = errors.New("job already running")

// Runner claims and executes jobs. *engine.Engine satisfies it.
type Runner interface {
	Claim(ctx context.Context, jobID string) (bool, error)
	Execute(ctx context.Context, jobID string) error
}

// Supervisor owns every job run started by this process. Runs share one
// context that Shutdown cancels, and their outcome stays observable.
type Supervisor struct {
	runner Runner
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	active  map[string]*handle
	lastErr map[string]error
	closed  bool
}

type handle struct {
	done chan struct{}
	err  error
}

func New(runner Runner) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		runner:  runner,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*handle),
		lastErr: make(map[string]error),
	}
}

// Start claims jobID and, when the claim is won, executes it in a tracked
// goroutine. It reports whether this call started a run; a job that is not
// PENDING is not an error.
func (s *Supervisor) Start(ctx context.Context, jobID string) (bool, error) {
	if err := s.reserve(jobID); err != nil {
		if errors.Is(err, errAlreadyRunning) {
			return false, nil
		}
		return false, err
	}

	claimed, err := s.runner.Claim(ctx, jobID)
	if err != nil || !claimed {
		s.release(jobID, nil, false)
		s.wg.Done()
		return false, err
	}

	go func() {
		defer s.wg.Done()
		err := s.runner.Execute(s.ctx, jobID)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("job run failed")
		}
		s.release(jobID, err, true)
	}()
	return true, nil
}

// reserve keeps two local callers from both reaching the store claim. It
// counts the run in wg under mu so Shutdown cannot start waiting between the
// reservation and the count.
func (s *Supervisor) reserve(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShutdown
	}
	if _, ok := s.active[jobID]; ok {
		return errAlreadyRunning
	}
	s.active[jobID] = &handle{done: make(chan struct{})}
	s.wg.Add(1)
	return nil
}

func (s *Supervisor) release(jobID string, err error, ran bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[jobID]
	if !ok {
		return
	}
	delete(s.active, jobID)
	if ran {
		if err != nil {
			s.lastErr[jobID] = err
		} else {
			delete(s.lastErr, jobID)
		}
	}
	h.err = err
	close(h.done)
}

// Wait blocks until the run of jobID finishes and returns its error. It
// returns nil at once when no run is active.
func (s *Supervisor) Wait(ctx context.Context, jobID string) error {
	s.mu.RLock()
	h, ok := s.active[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastError returns the engine-level error of the most recent run of jobID.
func (s *Supervisor) LastError(jobID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr[jobID]
}

// Active lists the ids of jobs being run, sorted.
func (s *Supervisor) Active() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Shutdown refuses new runs, cancels the running ones and waits for them to
// record their outcome or for ctx to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	n := len(s.active)
	s.mu.Unlock()

	if n > 0 {
		log.Info().Int("runs", n).Msg("cancelling job runs")
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
