package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/rs/zerolog/log"
)

var errSubscriptionEnded = errors.New("event subscription ended")

type EventsHandler struct {
	store job.Store
	bus   event.Bus
	runs  Runs
}

func NewEventsHandler(store job.Store, bus event.Bus, runs Runs) *EventsHandler {
	return &EventsHandler{store: store, bus: bus, runs: runs}
}

// EventTypes maps SSE event names to payloads. Every event travels as a
// plain message whose JSON carries its own "event" field.
var EventTypes = map[string]any{
	"message": event.Event{},
}

// Stream resolves the job id the store's way, subscribes on it and only
// then takes the status snapshot, so nothing published after the snapshot
// is missed. It starts the job if it is still PENDING and forwards events
// until job_done. Setup failures become one error event.
func (h *EventsHandler) Stream(ctx context.Context, input *JobIDInput, send sse.Sender) {
	d, err := h.store.Get(ctx, input.ID)
	if err != nil {
		h.fail(send, input.ID, err)
		return
	}
	sub := h.bus.Subscribe(d.ID)
	defer h.bus.Unsubscribe(sub)

	if d, err = h.store.Get(ctx, d.ID); err != nil {
		h.fail(send, input.ID, err)
		return
	}
	if !emit(send, event.Connected(d.ID, string(d.Status))) {
		return
	}

	switch {
	case d.Status == job.StatusPending:
		if _, err := h.runs.Start(ctx, d.ID); err != nil {
			h.fail(send, d.ID, err)
			return
		}
	case d.Status.Terminal():
		emit(send, event.JobDone(d.ID, string(d.Status), ""))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				h.fail(send, d.ID, errSubscriptionEnded)
				return
			}
			if !emit(send, e) || e.Type == event.TypeJobDone {
				return
			}
		}
	}
}

func (h *EventsHandler) fail(send sse.Sender, jobID string, err error) {
	detail := err.Error()
	if errors.Is(err, job.ErrNotFound) {
		detail = "job not found"
	}
	log.Warn().Err(err).Str("job_id", jobID).Msg("event stream failed")
	emit(send, event.Failure(detail))
}

func emit(send sse.Sender, e event.Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return send.Data(e) == nil
}
