package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/saltyscope/internal/domain/model"
)

// PolicyDependencies defines what the policy handler needs.
type PolicyDependencies interface {
	Policy(ctx context.Context) model.Policy
	UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error)
}

// PolicyHandler reads and replaces the wagering policy.
type PolicyHandler struct {
	deps PolicyDependencies
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(deps PolicyDependencies) *PolicyHandler {
	return &PolicyHandler{deps: deps}
}

// HandlePolicy handles GET and PUT /policy requests.
func (h *PolicyHandler) HandlePolicy(w http.ResponseWriter, r *http.Request) {
	const op = "api.policy"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Policy(r.Context()))
	case http.MethodPut:
		var p model.Policy
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		got, err := h.deps.UpdatePolicy(r.Context(), p)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, got)
		case errors.Is(err, model.ErrInvalidPolicy):
			writeError(w, http.StatusBadRequest, "invalid_policy", WrapKind(op, ErrBadRequest, err))
		default:
			writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		}
	default:
		http.NotFound(w, r)
	}
}
