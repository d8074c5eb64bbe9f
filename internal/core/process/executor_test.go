package process_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
}

type chunk struct {
	stream process.Stream
	text   string
}

type recorder struct {
	mu     sync.Mutex
	chunks []chunk
}

func (r *recorder) record(stream process.Stream, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk{stream, text})
	return nil
}

func (r *recorder) text(stream process.Stream) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, c := range r.chunks {
		if c.stream == stream {
			b.WriteString(c.text)
		}
	}
	return b.String()
}

func TestExecuteOK(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var rec recorder
	res, err := process.New().Execute(t.Context(), `echo hello`, 5*time.Second, rec.record)
	require.NoError(t, err)
	require.Equal(t, process.ClassOK, res.Class)
	require.Equal(t, 0, res.ExitCode)
	require.Empty(t, res.Reason)
	require.Equal(t, "hello\n", res.Output)
	require.Equal(t, "hello\n", rec.text(process.Stdout))
	require.False(t, res.Finished.Before(res.Started))
}

func TestExecuteNonZeroExit(t *testing.T) {
	t.Parallel()
	requireShell(t)

	res, err := process.New().Execute(t.Context(), `echo oops 1>&2; exit 3`, 5*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, process.ClassFail, res.Class)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, "exit 3", res.Reason)
	require.Equal(t, "oops\n", res.Output)
}

func TestExecuteBothStreams(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var rec recorder
	res, err := process.New().Execute(t.Context(),
		`for i in 1 2 3; do echo out$i; echo err$i 1>&2; done`, 5*time.Second, rec.record)
	require.NoError(t, err)
	require.Equal(t, process.ClassOK, res.Class)
	require.Equal(t, "out1\nout2\nout3\n", rec.text(process.Stdout))
	require.Equal(t, "err1\nerr2\nerr3\n", rec.text(process.Stderr))
	for _, line := range []string{"out1", "err1", "out3", "err3"} {
		require.Contains(t, res.Output, line)
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()
	requireShell(t)

	timeout := 300 * time.Millisecond
	start := time.Now()
	res, err := process.New().Execute(t.Context(), `echo started; sleep 5`, timeout, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Equal(t, process.ClassTimeout, res.Class)
	require.Equal(t, process.TimeoutExitCode, res.ExitCode)
	require.Equal(t, "timeout", res.Reason)
	require.True(t, strings.HasPrefix(res.Output, "started\n"), res.Output)
	require.True(t, strings.HasSuffix(res.Output, "Command 'echo started; sleep 5' timed out after 0.3 seconds"), res.Output)
	require.Less(t, elapsed, 3*time.Second)
}

func TestExecuteTimeoutKillsChildren(t *testing.T) {
	t.Parallel()
	requireShell(t)

	start := time.Now()
	res, err := process.New().Execute(t.Context(), `sleep 5 & sleep 5; wait`, 200*time.Millisecond, nil)
	require.NoError(t, err)
	require.Equal(t, process.ClassTimeout, res.Class)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestExecuteAbandonsInheritedPipes(t *testing.T) {
	t.Parallel()
	requireShell(t)

	start := time.Now()
	res, err := process.New(process.WithWaitDelay(100*time.Millisecond)).
		Execute(t.Context(), `(sleep 2 &); echo done`, 5*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, process.ClassOK, res.Class)
	require.Equal(t, "done\n", res.Output)
	require.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestExecuteChunkErrorsDoNotStopDrain(t *testing.T) {
	t.Parallel()
	requireShell(t)

	calls := 0
	var mu sync.Mutex
	failing := func(process.Stream, string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("subscriber gone")
	}
	res, err := process.New().Execute(t.Context(), `echo a; sleep 0.1; echo b; sleep 0.1; echo c`, 5*time.Second, failing)
	require.NoError(t, err)
	require.Equal(t, "a\nb\nc\n", res.Output)
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestExecuteStreamsIncrementally(t *testing.T) {
	t.Parallel()
	requireShell(t)

	first := make(chan time.Time, 1)
	onChunk := func(_ process.Stream, text string) error {
		select {
		case first <- time.Now():
		default:
		}
		return nil
	}
	start := time.Now()
	res, err := process.New().Execute(t.Context(), `echo early; sleep 1; echo late`, 5*time.Second, onChunk)
	require.NoError(t, err)
	require.Equal(t, process.ClassOK, res.Class)
	got := <-first
	assert.Less(t, got.Sub(start), 900*time.Millisecond, "first chunk should arrive before the command ends")
}

func TestExecuteDropsInvalidBytes(t *testing.T) {
	t.Parallel()
	requireShell(t)

	res, err := process.New().Execute(t.Context(), `printf 'a\377b\n'`, 5*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, "ab\n", res.Output)
}

func TestExecuteInheritsEnvironment(t *testing.T) {
	requireShell(t)
	t.Setenv("RECON_EXECUTOR_PROBE", "inherited")

	res, err := process.New().Execute(t.Context(), `echo $RECON_EXECUTOR_PROBE`, 5*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, "inherited\n", res.Output)
}

func TestExecuteCancelled(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := process.New().Execute(ctx, `sleep 5`, 10*time.Second, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecuteStartFailure(t *testing.T) {
	t.Parallel()
	_, err := process.New(process.WithShell("/does/not/exist/sh")).Execute(t.Context(), `true`, time.Second, nil)
	require.Error(t, err)
}

func TestTimeoutMessage(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Command 'sleep 5' timed out after 1 seconds", process.TimeoutMessage("sleep 5", time.Second))
	require.Equal(t, "Command 'x' timed out after 180 seconds", process.TimeoutMessage("x", 3*time.Minute))
}
