package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/saltyscope/internal/domain/model"
)

// maxObservationBytes bounds a single observation body.
const maxObservationBytes = 16 << 10

// ObservationDependencies defines what the observations handler needs.
type ObservationDependencies interface {
	Observe(ctx context.Context, obs model.Observation) error
}

// ObservationsHandler handles raw page observations.
type ObservationsHandler struct {
	deps ObservationDependencies
	busy error
}

// NewObservationsHandler creates a new observations handler.
func NewObservationsHandler(deps ObservationDependencies) *ObservationsHandler {
	return &ObservationsHandler{deps: deps}
}

// observationRequest is what the page scraper posts. Absent fields are
// meaningful: a missing accepting flag resets the engine to waiting.
type observationRequest struct {
	Slot1Identity    string  `json:"slot1Identity"`
	Slot2Identity    string  `json:"slot2Identity"`
	DisplaySlot1     string  `json:"displaySlot1"`
	DisplaySlot2     string  `json:"displaySlot2"`
	WageringAccepted *bool   `json:"wageringAccepted"`
	ModeSignalText   *string `json:"modeSignalText"`
	BalanceText      *string `json:"balanceText"`
}

func (o observationRequest) model() model.Observation {
	return model.Observation{
		EntrySlot1:   o.Slot1Identity,
		EntrySlot2:   o.Slot2Identity,
		DisplaySlot1: o.DisplaySlot1,
		DisplaySlot2: o.DisplaySlot2,
		Accepting:    model.AcceptanceFrom(o.WageringAccepted),
		ModeSignal:   o.ModeSignalText,
		BalanceText:  o.BalanceText,
	}
}

// HandlePostObservation handles POST /observations requests.
func (h *ObservationsHandler) HandlePostObservation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_observation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req observationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObservationBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	err := h.deps.Observe(r.Context(), req.model())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case h.busy != nil && errors.Is(err, h.busy):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	default:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	}
}
