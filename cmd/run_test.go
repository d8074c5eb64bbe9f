package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/stretchr/testify/require"
)

func TestPrintText(t *testing.T) {
	exit := 3
	events := []event.Event{
		event.StepStart("j1", "Probe", 1),
		event.Stream("j1", "Probe", 1, "stdout", "up\n"),
		event.StepEnd("j1", "Probe", 1, "FAIL", &exit),
		event.JobDone("j1", "DONE", ""),
	}
	var buf bytes.Buffer
	for _, e := range events {
		require.NoError(t, printText(&buf, e))
	}
	require.Equal(t, "==> [1] Probe\nup\n<== [1] Probe: FAIL (exit 3)\njob j1: DONE\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, event.JobDone("j1", "FAIL", "store unreachable")))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "job_done", got["event"])
	require.Equal(t, "FAIL", got["status"])
	require.Equal(t, "store unreachable", got["error"])
}

func TestPrintEventsReportsEviction(t *testing.T) {
	bus := event.NewBus(1)
	defer bus.Close()
	sub := bus.Subscribe("j1")
	require.NoError(t, bus.Publish("j1", event.StepStart("j1", "Probe", 1)))
	require.NoError(t, bus.Publish("j1", event.StepEnd("j1", "Probe", 1, "OK", nil)))

	var buf bytes.Buffer
	require.ErrorIs(t, printEvents(sub, &buf, printText), errOutputBehind)
	require.Equal(t, "==> [1] Probe\n", buf.String())
}

func TestPrintEventsCleanEnd(t *testing.T) {
	bus := event.NewBus(4)
	sub := bus.Subscribe("j1")
	require.NoError(t, bus.Publish("j1", event.JobDone("j1", "DONE", "")))
	bus.Unsubscribe(sub)

	var buf bytes.Buffer
	require.NoError(t, printEvents(sub, &buf, printText))
}
