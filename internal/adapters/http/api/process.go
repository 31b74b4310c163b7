// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/avetra/prospect/internal/domain/model"
)

// ProcessDependencies defines the interface for invocation processing.
type ProcessDependencies interface {
	ProcessIdentifiers(ctx context.Context, ids []model.Identifier) model.BatchResult
	ResolveCandidates(ctx context.Context, limit int) ([]model.Identifier, error)
}

// ProcessHandler handles synchronous invocation requests.
type ProcessHandler struct {
	deps ProcessDependencies
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(deps ProcessDependencies) *ProcessHandler {
	return &ProcessHandler{deps: deps}
}

// HandleProcess handles POST /v1/process requests. The request selects one
// invocation mode: a single nodeId, an explicit nodeIds list, or batch mode
// where candidates are resolved from the repository. Processing failures are
// reported per identifier inside the envelope, never as a request error.
func (h *ProcessHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	const op = "api.process"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	single := strings.TrimSpace(req.NodeID) != ""
	ids := req.identifiers()
	if req.Batch {
		var err error
		ids, err = h.deps.ResolveCandidates(r.Context(), req.Limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
	}

	res := h.deps.ProcessIdentifiers(r.Context(), ids)
	writeJSON(w, http.StatusOK, newEnvelope(res, single))
}
