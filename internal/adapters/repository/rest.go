package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"
)

// REST store configuration constants.
const (
	defaultRESTTimeout = 15 * time.Second
	maxStoreResponse   = 1 << 20 // node documents are small

	headerAPIKey = "X-API-Key"
)

// RESTStore talks to the node graph service over its JSON API.
type RESTStore struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     logger.Logger
}

// NewRESTStore creates a store client for the graph service at baseURL.
func NewRESTStore(baseURL, apiKey string, opts ...Option) *RESTStore {
	s := &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultRESTTimeout},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = logger.Get().Named("store")

	return s
}

// nodeDocument is the graph service's node representation.
type nodeDocument struct {
	NodeID        string `json:"nodeId"`
	UserID        string `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
	ProfileURL    string `json:"profileUrl,omitempty"`
	APIScraped    bool   `json:"apiScraped"`
	Scraped       bool   `json:"scraped"`
	QualityScore  int    `json:"qualityScore,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	LastAttemptAt string `json:"lastAttemptedAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func (d nodeDocument) toModel() model.Node {
	return model.Node{
		ID:            d.NodeID,
		UserID:        d.UserID,
		Username:      d.Username,
		ProfileURL:    d.ProfileURL,
		APIScraped:    d.APIScraped,
		Scraped:       d.Scraped,
		QualityScore:  d.QualityScore,
		ErrorCode:     d.ErrorCode,
		LastAttemptAt: parseStamp(d.LastAttemptAt),
		UpdatedAt:     parseStamp(d.UpdatedAt),
	}
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nodeUpdate is the profile document applied to a node on save and merge.
type nodeUpdate struct {
	Username       string        `json:"username"`
	Profile        model.Profile `json:"profile"`
	QualityScore   int           `json:"qualityScore"`
	MeetsThreshold bool          `json:"meetsThreshold"`
	APIScraped     bool          `json:"apiScraped"`
	Scraped        bool          `json:"scraped"`
	LastAttemptAt  string        `json:"lastAttemptedAt"`
}

// Get implements Store.
func (s *RESTStore) Get(ctx context.Context, nodeID string) (model.Node, error) {
	var envelope struct {
		Data *nodeDocument `json:"data"`
	}
	if err := s.do(ctx, "get", http.MethodGet, "nodes/"+url.PathEscape(nodeID), nil, &envelope); err != nil {
		return model.Node{}, err
	}
	if envelope.Data == nil {
		return model.Node{}, ErrNotFound
	}
	return envelope.Data.toModel(), nil
}

// TouchAttempt implements Store.
func (s *RESTStore) TouchAttempt(ctx context.Context, nodeID string) error {
	payload := struct {
		NodeID        string `json:"nodeId"`
		LastAttemptAt string `json:"lastAttemptedAt"`
	}{
		NodeID:        nodeID,
		LastAttemptAt: time.Now().UTC().Format(time.RFC3339),
	}
	return s.do(ctx, "touch", http.MethodPatch, "nodes/"+url.PathEscape(nodeID), payload, nil)
}

// Save implements Store.
func (s *RESTStore) Save(ctx context.Context, nodeID string, profile model.Profile, score model.QualityScore) error {
	payload := struct {
		NodeID string     `json:"nodeId"`
		Data   nodeUpdate `json:"data"`
	}{
		NodeID: nodeID,
		Data: nodeUpdate{
			Username:       profile.Username,
			Profile:        profile,
			QualityScore:   score.Overall,
			MeetsThreshold: score.MeetsThreshold,
			APIScraped:     true,
			Scraped:        score.MeetsThreshold,
			LastAttemptAt:  time.Now().UTC().Format(time.RFC3339),
		},
	}
	return s.do(ctx, "save", http.MethodPatch, "nodes/"+url.PathEscape(nodeID), payload, nil)
}

// MarkError implements Store.
func (s *RESTStore) MarkError(ctx context.Context, nodeID string, f *faults.Fault) error {
	payload := struct {
		NodeID    string `json:"nodeId"`
		ErrorCode string `json:"errorCode"`
		Message   string `json:"errorMessage,omitempty"`
	}{NodeID: nodeID}
	if f != nil {
		payload.ErrorCode = string(f.Kind)
		payload.Message = f.Error()
	}
	return s.do(ctx, "mark_error", http.MethodPost, "nodes/mark-error", payload, nil)
}

// Delete implements Store. Deleting an already-gone node is not an error.
func (s *RESTStore) Delete(ctx context.Context, nodeID string) error {
	err := s.do(ctx, "delete", http.MethodDelete, "nodes/"+url.PathEscape(nodeID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// MergeDuplicates implements Store.
func (s *RESTStore) MergeDuplicates(ctx context.Context, nodeID, username string) (int, error) {
	payload := struct {
		Username      string `json:"username"`
		ExcludeNodeID string `json:"excludeNodeId"`
	}{Username: username, ExcludeNodeID: nodeID}

	var out struct {
		ModifiedCount int `json:"modifiedCount"`
	}
	if err := s.do(ctx, "merge", http.MethodPost, "nodes/update-duplicates", payload, &out); err != nil {
		return 0, err
	}
	return out.ModifiedCount, nil
}

// Candidates implements Store.
func (s *RESTStore) Candidates(ctx context.Context, limit int) ([]model.Identifier, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	var out struct {
		Nodes []nodeDocument `json:"nodes"`
	}
	route := "nodes/scrape-candidates?limit=" + strconv.Itoa(limit)
	if err := s.do(ctx, "candidates", http.MethodGet, route, nil, &out); err != nil {
		return nil, err
	}

	ids := make([]model.Identifier, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		ids = append(ids, model.Identifier{
			NodeID:       n.NodeID,
			UserID:       n.UserID,
			UsernameHint: n.Username,
		})
	}
	return ids, nil
}

// Stats implements Store.
func (s *RESTStore) Stats(ctx context.Context) (Stats, error) {
	var out struct {
		Stats Stats `json:"stats"`
	}
	if err := s.do(ctx, "stats", http.MethodGet, "nodes/scrape-stats", nil, &out); err != nil {
		return Stats{}, err
	}
	return out.Stats, nil
}

// do issues one request against the graph service and classifies failures
// into persistence faults. A 404 surfaces as ErrNotFound.
func (s *RESTStore) do(ctx context.Context, op, method, route string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return faults.Wrap(faults.KindPersistConnection, err, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url(route), body)
	if err != nil {
		return faults.Wrap(faults.KindPersistConnection, err, "build request")
	}
	req.Header.Set(headerAPIKey, s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpc.Do(req)
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRepositoryOp(op, "transport_error")
		s.log.Warn(ctx, "store request failed",
			logger.String("op", op),
			logger.String("route", route),
			logger.Error(err),
		)
		return faults.Wrap(faults.PersistKindFromTransport(err), err, "store request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStoreResponse))
	if err != nil {
		metrics.RecordRepositoryOp(op, "transport_error")
		return faults.Wrap(faults.KindPersistConnection, err, "read store response")
	}

	if resp.StatusCode == http.StatusNotFound {
		metrics.RecordRepositoryOp(op, "not_found")
		return ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		metrics.RecordRepositoryOp(op, "http_error")
		s.log.Warn(ctx, "store returned an error status",
			logger.String("op", op),
			logger.String("route", route),
			logger.Int("status", resp.StatusCode),
		)
		return faults.Newf(faults.PersistKindFromStatus(resp.StatusCode), "store answered %d", resp.StatusCode)
	}

	metrics.RecordRepositoryOp(op, "success")
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return faults.Wrap(faults.KindPersistConnection, err, "decode store response")
		}
	}
	return nil
}

// url normalizes routes under the service's /api prefix.
func (s *RESTStore) url(route string) string {
	route = strings.TrimPrefix(route, "/")
	if !strings.HasPrefix(route, "api/") {
		route = "api/" + route
	}
	return s.baseURL + "/" + route
}
