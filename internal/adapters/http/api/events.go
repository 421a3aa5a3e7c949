package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// EventDependencies defines what event intake needs.
type EventDependencies interface {
	dedupe.Deduper

	// Submit hands an event to the workers. It fails with queue.ErrFull on
	// backpressure and with any other error once intake has stopped.
	Submit(ctx context.Context, e model.LifecycleEvent) error
}

// EventsHandler handles event requests
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// eventRequest is the body of POST /events.
type eventRequest struct {
	EventID     string `json:"event_id"`
	EntityID    int64  `json:"entity_id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`
}

func (e eventRequest) toEvent() (model.LifecycleEvent, error) {
	kind, err := model.ParseKind(e.Kind)
	if err != nil {
		return model.LifecycleEvent{}, err
	}
	ev := model.LifecycleEvent{
		EventID:     e.EventID,
		EntityID:    e.EntityID,
		Kind:        kind,
		DisplayName: e.DisplayName,
		TS:          time.Now(),
	}
	return ev, ev.Validate()
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /events requests
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), ev.EventID) {
		metrics.RecordLifecycleDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.Submit(r.Context(), ev); err != nil {
		// The event never reached a worker, so a retry must not be dropped.
		h.deps.Unrecord(r.Context(), ev.EventID)
		if errors.Is(err, queue.ErrFull) {
			writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
			return
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
