// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
)

// ProvidersDependencies defines the interface for provider chain inspection.
type ProvidersDependencies interface {
	Providers(ctx context.Context, probe bool) []ProviderInfo
}

// ProvidersHandler handles provider status requests.
type ProvidersHandler struct {
	deps ProvidersDependencies
}

// NewProvidersHandler creates a new providers handler.
func NewProvidersHandler(deps ProvidersDependencies) *ProvidersHandler {
	return &ProvidersHandler{deps: deps}
}

// HandleProviders handles GET /v1/providers?probe=true requests. Without the
// probe flag the configured chain is reported as-is; with it, each provider
// is pinged for reachability.
func (h *ProvidersHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	const op = "api.providers"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	probe := false
	if raw := r.URL.Query().Get("probe"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		probe = b
	}
	writeJSON(w, http.StatusOK, h.deps.Providers(r.Context(), probe))
}
