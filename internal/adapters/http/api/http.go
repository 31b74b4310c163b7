// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	app "github.com/avetra/prospect/internal/app"
	"github.com/avetra/prospect/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ProcessIdentifiers runs the pipeline for an ordered identifier list
	// and reports one outcome per identifier.
	ProcessIdentifiers(ctx context.Context, ids []model.Identifier) model.BatchResult

	// ResolveCandidates picks unscraped identifiers for batch-mode requests.
	ResolveCandidates(ctx context.Context, limit int) ([]model.Identifier, error)

	// Enqueue submits one identifier for asynchronous processing.
	Enqueue(ctx context.Context, id model.Identifier) (EnqueueStatus, error)

	// Providers reports the configured provider chain, optionally probed.
	Providers(ctx context.Context, probe bool) []ProviderInfo
}

// EnqueueStatus mirrors the submission verdict returned by the service.
type EnqueueStatus = app.EnqueueStatus

// ProviderInfo mirrors the provider status shape returned by the service.
type ProviderInfo = app.ProviderInfo

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	metricsHandler   *MetricsHandler
	statsHandler     *StatsHandler
	processHandler   *ProcessHandler
	enqueueHandler   *EnqueueHandler
	providersHandler *ProvidersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	if deps == nil {
		panic("api: nil Dependencies")
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		metricsHandler:   NewMetricsHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		processHandler:   NewProcessHandler(deps),
		enqueueHandler:   NewEnqueueHandler(deps),
		providersHandler: NewProvidersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("api: nil mux")
	}
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.metricsHandler.HandleMetrics)
	mux.HandleFunc("/v1/process", MetricsMiddleware(s.processHandler.HandleProcess, "process"))
	mux.HandleFunc("/v1/enqueue", MetricsMiddleware(s.enqueueHandler.HandleEnqueue, "enqueue"))
	mux.HandleFunc("/v1/providers", MetricsMiddleware(s.providersHandler.HandleProviders, "providers"))
	mux.HandleFunc("/v1/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
}

// processRequest mirrors the OpenAPI schema for POST /v1/process. Exactly one
// of nodeId, nodeIds or batch selects the invocation mode.
type processRequest struct {
	NodeID   string   `json:"nodeId"`
	Username string   `json:"username"`
	NodeIDs  []string `json:"nodeIds"`
	Batch    bool     `json:"batch"`
	Limit    int      `json:"limit"`
}

func (p processRequest) validate() error {
	single := strings.TrimSpace(p.NodeID) != ""
	multi := len(p.NodeIDs) > 0
	switch {
	case !single && !multi && !p.Batch:
		return errors.New("missing nodeId, nodeIds or batch")
	case single && multi:
		return errors.New("nodeId and nodeIds are mutually exclusive")
	case p.Batch && (single || multi):
		return errors.New("batch mode takes no explicit identifiers")
	case p.Limit < 0:
		return errors.New("limit must not be negative")
	case p.Limit != 0 && !p.Batch:
		return errors.New("limit is only valid in batch mode")
	}
	return nil
}

// identifiers maps an explicit request to the list handed to the core.
// Batch-mode requests resolve their list through the repository instead.
func (p processRequest) identifiers() []model.Identifier {
	if strings.TrimSpace(p.NodeID) != "" {
		return []model.Identifier{{NodeID: strings.TrimSpace(p.NodeID), UsernameHint: strings.TrimSpace(p.Username)}}
	}
	ids := make([]model.Identifier, 0, len(p.NodeIDs))
	for _, id := range p.NodeIDs {
		ids = append(ids, model.Identifier{NodeID: strings.TrimSpace(id)})
	}
	return ids
}

// enqueueRequest mirrors the OpenAPI schema for POST /v1/enqueue.
type enqueueRequest struct {
	NodeID   string `json:"nodeId"`
	Username string `json:"username"`
}

func (e enqueueRequest) validate() error {
	if strings.TrimSpace(e.NodeID) == "" {
		return errors.New("missing nodeId")
	}
	return nil
}

// invocationEnvelope is the response contract for POST /v1/process. Body
// carries flat outcome fields for single-identifier calls and an outcomes
// sequence otherwise; batchItemFailures lists identifiers eligible for
// redelivery.
type invocationEnvelope struct {
	StatusCode        int                `json:"statusCode"`
	Body              invocationBody     `json:"body"`
	BatchItemFailures []batchItemFailure `json:"batchItemFailures"`
}

type invocationBody struct {
	Processed       int `json:"processed"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	ProfilesScraped int `json:"profiles_scraped"`

	// Single-identifier invocations surface that outcome's fields flat.
	Success          *bool  `json:"success,omitempty"`
	NodeID           string `json:"nodeId,omitempty"`
	UserID           string `json:"userId,omitempty"`
	AlreadyProcessed *bool  `json:"alreadyProcessed,omitempty"`
	NewlyScraped     *bool  `json:"newlyScraped,omitempty"`

	// Multi-identifier invocations generalize to an ordered sequence.
	InvocationID string          `json:"invocationId,omitempty"`
	Outcomes     []model.Outcome `json:"outcomes,omitempty"`
}

type batchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

// newEnvelope folds a batch result into the invocation response contract.
func newEnvelope(res model.BatchResult, single bool) invocationEnvelope {
	env := invocationEnvelope{
		StatusCode: http.StatusOK,
		Body: invocationBody{
			Processed:       res.Processed,
			Succeeded:       res.Succeeded,
			Failed:          res.Failed,
			ProfilesScraped: res.ProfilesScraped,
		},
		BatchItemFailures: make([]batchItemFailure, 0, len(res.Redeliver)),
	}
	for _, id := range res.Redeliver {
		env.BatchItemFailures = append(env.BatchItemFailures, batchItemFailure{ItemIdentifier: id})
	}
	if single && len(res.Outcomes) == 1 {
		out := res.Outcomes[0]
		env.Body.Success = &out.Success
		env.Body.NodeID = out.NodeID
		env.Body.UserID = out.UserID
		env.Body.AlreadyProcessed = &out.AlreadyProcessed
		env.Body.NewlyScraped = &out.NewlyScraped
		return env
	}
	env.Body.InvocationID = res.InvocationID
	env.Body.Outcomes = res.Outcomes
	return env
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
