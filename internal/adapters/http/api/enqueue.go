// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	app "github.com/avetra/prospect/internal/app"
	"github.com/avetra/prospect/internal/domain/model"
)

// EnqueueDependencies defines the interface for queue submission.
type EnqueueDependencies interface {
	Enqueue(ctx context.Context, id model.Identifier) (EnqueueStatus, error)
}

// EnqueueHandler handles asynchronous submission requests.
type EnqueueHandler struct {
	deps EnqueueDependencies
}

// NewEnqueueHandler creates a new enqueue handler.
func NewEnqueueHandler(deps EnqueueDependencies) *EnqueueHandler {
	return &EnqueueHandler{deps: deps}
}

// HandleEnqueue handles POST /v1/enqueue requests. Concurrent duplicates of
// an in-flight node acknowledge without re-queueing; a full queue answers
// with backpressure so the caller can retry later.
func (h *EnqueueHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.enqueue"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	status, err := h.deps.Enqueue(r.Context(), model.Identifier{
		NodeID:       req.NodeID,
		UsernameHint: req.Username,
	})
	if err != nil {
		if errors.Is(err, app.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	switch status {
	case app.EnqueueDuplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	case app.EnqueueFull:
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
	}
}
