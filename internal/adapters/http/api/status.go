package api

import (
	"context"
	"net/http"

	"github.com/okian/saltyscope/internal/domain/model"
)

// StatusDependencies defines what the status and rebet handlers need.
type StatusDependencies interface {
	Status(ctx context.Context) model.Snapshot
	Rebet(ctx context.Context) (model.Snapshot, error)
}

// StatusHandler serves the current snapshot and explicit re-decisions.
type StatusHandler struct {
	deps StatusDependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HandleGetStatus handles GET /status requests.
func (h *StatusHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status(r.Context()))
}

// HandlePostRebet handles POST /rebet requests. The response is the status
// after the re-decision, which may well be a refusal.
func (h *StatusHandler) HandlePostRebet(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rebet"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	snap, err := h.deps.Rebet(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
