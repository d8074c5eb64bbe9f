package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ExitClass is the classified outcome of one command.
type ExitClass string

const (
	ClassOK      ExitClass = "OK"
	ClassFail    ExitClass = "FAIL"
	ClassTimeout ExitClass = "TIMEOUT"
)

// TimeoutExitCode is reported when a command was killed on timeout.
const TimeoutExitCode = -1

// Stream labels the pipe a chunk was read from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// ChunkFunc receives output as it is read. Chunks of one stream arrive in
// order; there is no ordering between the two streams. Returned errors are
// logged and never stop the drain.
type ChunkFunc func(stream Stream, text string) error

// Result describes a finished command.
type Result struct {
	Class    ExitClass
	ExitCode int
	Reason   string
	// Output is stdout and stderr interleaved in arrival order.
	Output   string
	Started  time.Time
	Finished time.Time
}

const (
	defaultShell     = "/bin/sh"
	defaultWaitDelay = 2 * time.Second
)

// Executor runs opaque shell command lines.
type Executor struct {
	shell     string
	waitDelay time.Duration
}

type Option func(*Executor)

// WithShell sets the shell that interprets command lines.
func WithShell(path string) Option {
	return func(e *Executor) {
		if path != "" {
			e.shell = path
		}
	}
}

// WithWaitDelay bounds how long output pipes are drained after the shell
// exits or is killed. Descendants that keep a pipe open past it are
// abandoned.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{shell: defaultShell, waitDelay: defaultWaitDelay}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs command through the shell with the inherited environment.
// A timeout of zero disables the deadline. Non-zero exits and timeouts are
// reported in Result; the error is non-nil only when the command could not
// be started or ctx was cancelled.
func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration, onChunk ChunkFunc) (Result, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var combined output
	cmd := exec.CommandContext(runCtx, e.shell, "-c", command)
	cmd.Env = os.Environ()
	cmd.Stdout = &streamWriter{stream: Stdout, out: &combined, onChunk: onChunk}
	cmd.Stderr = &streamWriter{stream: Stderr, out: &combined, onChunk: onChunk}
	cmd.WaitDelay = e.waitDelay
	isolate(cmd)

	res := Result{Started: time.Now().UTC()}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}

	// Wait returns only after both copy goroutines finished or were
	// abandoned by WaitDelay.
	waitErr := cmd.Wait()
	res.Finished = time.Now().UTC()
	res.Output = combined.String()

	if ctx.Err() != nil {
		return res, fmt.Errorf("command interrupted: %w", context.Cause(ctx))
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !cmd.ProcessState.Exited() {
		res.Class = ClassTimeout
		res.ExitCode = TimeoutExitCode
		res.Reason = "timeout"
		msg := TimeoutMessage(command, timeout)
		if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
			res.Output += "\n"
		}
		res.Output += msg
		return res, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, fmt.Errorf("wait command: %w", waitErr)
	}

	res.ExitCode = cmd.ProcessState.ExitCode()
	if code, ok := signalExitCode(cmd.ProcessState); ok {
		res.ExitCode = code
	}
	if res.ExitCode == 0 {
		res.Class = ClassOK
	} else {
		res.Class = ClassFail
		res.Reason = "exit " + strconv.Itoa(res.ExitCode)
	}
	return res, nil
}

// TimeoutMessage is the synthetic output recorded for a timed-out command.
func TimeoutMessage(command string, timeout time.Duration) string {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("Command '%s' timed out after %s seconds", command, secs)
}

// output accumulates both streams in arrival order.
type output struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (o *output) append(s string) {
	o.mu.Lock()
	o.buf.WriteString(s)
	o.mu.Unlock()
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// streamWriter receives one pipe's bytes from os/exec's copy goroutine,
// decodes them and forwards each chunk immediately.
type streamWriter struct {
	stream  Stream
	out     *output
	onChunk ChunkFunc
	dec     decoder
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.emit(w.dec.decode(p))
	return len(p), nil
}

func (w *streamWriter) emit(text string) {
	if text == "" {
		return
	}
	w.out.append(text)
	if w.onChunk == nil {
		return
	}
	if err := w.onChunk(w.stream, text); err != nil {
		log.Debug().Err(err).Str("stream", string(w.stream)).Msg("chunk handler failed")
	}
}
